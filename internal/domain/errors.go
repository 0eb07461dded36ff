package domain

import "errors"

// ErrorKind classifies expected business failures.
type ErrorKind string

// Error kinds.
const (
	KindUnknown                 ErrorKind = "UNKNOWN"
	KindInsufficientCapital     ErrorKind = "INSUFFICIENT_CAPITAL"
	KindHasRealPosition         ErrorKind = "HAS_REAL_POSITION"
	KindNoRealPosition          ErrorKind = "NO_REAL_POSITION"
	KindNoVirtualPosition       ErrorKind = "NO_VIRTUAL_POSITION"
	KindCooldownActive          ErrorKind = "COOLDOWN_ACTIVE"
	KindInvalidOrderSize        ErrorKind = "INVALID_ORDER_SIZE"
	KindMarketDataDegraded      ErrorKind = "MARKET_DATA_DEGRADED"
	KindNicheComputationFailure ErrorKind = "NICHE_COMPUTATION_FAILURE"
	KindGeneticDistanceFailure  ErrorKind = "GENETIC_DISTANCE_FAILURE"
)

// Account and order constraint errors. Expected and non-fatal.
var (
	ErrInsufficientVirtualCapital = errors.New("insufficient virtual capital")
	ErrHasRealPosition            = errors.New("real position already open")
	ErrNoRealPosition             = errors.New("no real position open")
	ErrNoVirtualPosition          = errors.New("no virtual position open")
	ErrCooldownActive             = errors.New("trade cooldown active")
	ErrInvalidOrderSize           = errors.New("invalid order size")
)

// Recoverable computation errors.
var (
	ErrMarketDataDegraded      = errors.New("market statistics unavailable, using defaults")
	ErrNicheComputationFailure = errors.New("niche computation failed")
	ErrGeneticDistanceFailure  = errors.New("genetic distance computation failed")
)

// Fatal errors. These indicate a modeling bug and halt the run.
var (
	ErrGenomeDimension     = errors.New("genome dimension mismatch")
	ErrNegativeCapitalPool = errors.New("capital pool balance negative")
)

// Validation errors.
var (
	ErrInvalidInstinct   = errors.New("instinct out of range")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInsufficientVirtualCapital, KindInsufficientCapital},
	{ErrHasRealPosition, KindHasRealPosition},
	{ErrNoRealPosition, KindNoRealPosition},
	{ErrNoVirtualPosition, KindNoVirtualPosition},
	{ErrCooldownActive, KindCooldownActive},
	{ErrInvalidOrderSize, KindInvalidOrderSize},
	{ErrMarketDataDegraded, KindMarketDataDegraded},
	{ErrNicheComputationFailure, KindNicheComputationFailure},
	{ErrGeneticDistanceFailure, KindGeneticDistanceFailure},
}

// KindOf maps an error (possibly wrapped) to its ErrorKind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, e := range kindTable {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindUnknown
}

// IsFatal reports whether err must halt the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrGenomeDimension) || errors.Is(err, ErrNegativeCapitalPool)
}
