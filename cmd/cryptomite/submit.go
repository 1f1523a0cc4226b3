package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/cryptomite-go/cryptomite/internal/extractor"
	"github.com/cryptomite-go/cryptomite/internal/pipeline"
	"github.com/cryptomite-go/cryptomite/pkg/config"
	"github.com/cryptomite-go/cryptomite/pkg/kafka"
)

// jobPublisher is satisfied by *kafka.Producer.
type jobPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
	Close() error
}

// newJobPublisher is swapped in tests.
var newJobPublisher = func(cfg *config.Config) jobPublisher {
	return kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ExtractionJobs)
}

func runSubmit(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("submit")
	configPath := fs.String("config", "configs/development.yaml", "path to config file")
	id := fs.String("id", "", "job id (default: random UUID)")
	name := fs.String("extractor", "", "extractor name")
	var p extractor.Params
	fs.IntVar(&p.N1, "n", 0, "input length in bits")
	fs.IntVar(&p.M, "m", 0, "output length in bits")
	fs.Float64Var(&p.K1, "k", 0, "input min-entropy (trevisan)")
	fs.Float64Var(&p.Log2Error, "error", 0, "log2 of the extractor error (trevisan)")
	fs.IntVar(&p.Trinomial, "trinomial", 0, "middle exponent of the reduction trinomial (raz)")
	var in1, in2 bitsFlags
	fs.StringVar(&in1.literal, "input1", "", "weak input as a bit string")
	fs.StringVar(&in1.file, "input1-file", "", "read the weak input from a binary file")
	fs.StringVar(&in2.literal, "input2", "", "seed as a bit string")
	fs.StringVar(&in2.file, "input2-file", "", "read the seed from a binary file")
	random := fs.Bool("random", false, "draw inputs that are not given from crypto/rand")
	count := fs.Int("count", 1, "number of jobs to submit; with -random each job draws fresh inputs")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *name == "" {
		return usageError{fmt.Errorf("-extractor is required")}
	}
	if *count < 1 {
		return usageError{fmt.Errorf("-count must be at least 1")}
	}
	if *id != "" && *count > 1 {
		return usageError{fmt.Errorf("-id cannot be combined with -count")}
	}

	// Build the extractor locally so malformed jobs never reach the topic.
	ext, err := extractor.New(*name, p)
	if err != nil {
		return err
	}
	input1, err := in1.load("input1")
	if err != nil {
		return err
	}
	input2, err := in2.load("input2")
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	p.Extractor = ext.Name()

	jobs := make([]pipeline.Job, 0, *count)
	events := make([]kafka.Event, 0, *count)
	for range *count {
		job := pipeline.Job{
			ID:        *id,
			Extractor: ext.Name(),
			Params:    p,
		}
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		in1, in2 := input1, input2
		if *random {
			if in1, in2, err = fillRandom(ext, in1, in2); err != nil {
				return err
			}
		}
		job.Input1, job.Input2 = in1.String(), in2.String()
		jobs = append(jobs, job)
		events = append(events, kafka.Event{Key: job.ID, Value: job})
	}

	pub := newJobPublisher(cfg)
	defer pub.Close()
	if err := pub.PublishBatch(ctx, events); err != nil {
		return fmt.Errorf("submitting %d job(s): %w", len(jobs), err)
	}
	for _, job := range jobs {
		if _, err := fmt.Fprintln(stdout, job.ID); err != nil {
			return err
		}
	}
	return nil
}
