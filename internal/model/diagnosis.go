package model

// Diagnosis is one code/name pair of the discharge diagnosis list. The
// registry encodes secondary diagnoses as two parallel comma-joined lists
// (codes and names) that are zipped positionally; a shorter list leaves the
// trailing entries partially populated.
type Diagnosis struct {
	Code string
	Name string
}
