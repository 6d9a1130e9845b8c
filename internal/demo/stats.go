package demo

// Counts tallies what Populate created.
type Counts struct {
	Users       int
	Compliance  int
	Tasks       int
	Documents   int
	Trainings   int
	Risks       int
	GapAnalyses int
	Inspections int
}

func (c *Counts) Add(o Counts) {
	c.Users += o.Users
	c.Compliance += o.Compliance
	c.Tasks += o.Tasks
	c.Documents += o.Documents
	c.Trainings += o.Trainings
	c.Risks += o.Risks
	c.GapAnalyses += o.GapAnalyses
	c.Inspections += o.Inspections
}

func (c Counts) Total() int {
	return c.Users + c.Compliance + c.Tasks + c.Documents + c.Trainings + c.Risks + c.GapAnalyses + c.Inspections
}
