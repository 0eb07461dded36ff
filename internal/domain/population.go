package domain

// GenomeEvent marks why a genome record was written.
type GenomeEvent string

// Genome events.
const (
	GenomeEventBirth GenomeEvent = "BIRTH"
	GenomeEventDeath GenomeEvent = "DEATH"
)

// GenomeRecord is a persisted genome/lineage snapshot for cross-run reuse.
type GenomeRecord struct {
	RunID      string
	AgentID    string
	Event      GenomeEvent
	Generation int
	Tick       int64

	FamilyID       string
	DominantFamily string
	ParentIDs      []string
	Genome         Genome
	Instinct       Instinct

	Fitness      float64
	FinalCapital *float64 // set on DEATH
}

// DiversityStats summarizes population diversity at an evolution boundary.
type DiversityStats struct {
	PopulationSize      int
	NicheCount          int
	FamilyCount         int
	RareFamilyCount     int
	SmallNicheProtected int
	RareStrategyProt    int
	RareLineageProt     int
	TotalProtected      int // after the protection cap
	MeanGeneticDistance float64
}

// GenerationStats is a persisted summary of one evolution boundary.
type GenerationStats struct {
	RunID      string
	Generation int
	Tick       int64

	Population int
	Eliminated int
	Born       int
	Protected  int
	Unfilled   int // eliminations that could not be performed

	NicheCount          int
	RareFamilyCount     int
	MeanGeneticDistance float64

	BestFitness float64
	MeanFitness float64
	PoolBalance float64
}
