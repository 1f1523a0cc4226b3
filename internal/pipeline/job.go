// Package pipeline runs extraction jobs taken from Kafka. Each job is
// extracted under a concurrency limit, its result is published back to
// Kafka and the run is recorded in the ledger.
package pipeline

import (
	"fmt"

	"github.com/cryptomite-go/cryptomite/internal/bits"
	"github.com/cryptomite-go/cryptomite/internal/extractor"
)

// Job is the message consumed from the jobs topic. Inputs are bit strings
// ("0110..."); Input2 is the seed and is empty for von Neumann.
type Job struct {
	ID        string           `json:"id"`
	Extractor string           `json:"extractor"`
	Params    extractor.Params `json:"params"`
	Input1    string           `json:"input1"`
	Input2    string           `json:"input2,omitempty"`
}

// Result is published to the results topic once a job finishes.
type Result struct {
	JobID        string             `json:"job_id"`
	Extractor    string             `json:"extractor"`
	Status       string             `json:"status"`
	Output       string             `json:"output,omitempty"`
	OutputBits   int                `json:"output_bits"`
	OutputSHA256 string             `json:"output_sha256,omitempty"`
	Error        string             `json:"error,omitempty"`
	LatencyMS    float64            `json:"latency_ms"`
	StagesMS     map[string]float64 `json:"stages_ms,omitempty"`
}

func (j Job) validate(maxBits int) (in1, in2 bits.Bits, err error) {
	if j.ID == "" {
		return nil, nil, fmt.Errorf("job has no id")
	}
	if j.Extractor == "" {
		return nil, nil, fmt.Errorf("job %s names no extractor", j.ID)
	}
	in1, err = bits.Parse(j.Input1)
	if err != nil {
		return nil, nil, fmt.Errorf("job %s input1: %w", j.ID, err)
	}
	if j.Input2 != "" {
		in2, err = bits.Parse(j.Input2)
		if err != nil {
			return nil, nil, fmt.Errorf("job %s input2: %w", j.ID, err)
		}
	}
	if maxBits > 0 && (len(in1) > maxBits || len(in2) > maxBits) {
		return nil, nil, fmt.Errorf("job %s: input exceeds %d bits", j.ID, maxBits)
	}
	return in1, in2, nil
}
