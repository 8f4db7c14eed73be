package core

import (
	"errors"
	"fmt"
	"time"
)

// WriteOutcome is the result of persisting one profile within a bulk write.
type WriteOutcome struct {
	Id  ID
	Key string // Identity key of the profile
	Err error  // Nil when the write succeeded
}

// WriteResult reports per-record outcomes of a bulk write.
// A bulk write may partially succeed; inspect the outcomes rather than
// assuming all-or-nothing.
type WriteResult struct {
	Outcomes []WriteOutcome
}

// Record appends an outcome.
func (r *WriteResult) Record(id ID, key string, err error) {
	r.Outcomes = append(r.Outcomes, WriteOutcome{Id: id, Key: key, Err: err})
}

// Succeeded returns the number of successful writes.
func (r *WriteResult) Succeeded() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of failed writes.
func (r *WriteResult) Failed() int {
	if r == nil {
		return 0
	}
	return len(r.Outcomes) - r.Succeeded()
}

// Err joins the errors of every failed write, or returns nil.
func (r *WriteResult) Err() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s (id %d): %w", o.Key, o.Id, o.Err))
		}
	}
	return errors.Join(errs...)
}

// BatchReport summarizes one reconciliation run.
type BatchReport struct {
	RunID              string
	Source             string
	Received           int // Records in the batch
	Suppressed         int // Dropped because their cookie is already stored
	DistinctInterests  int // Interests sent through classification
	ClassifierFailures int // Interests that degraded to CohortUnknown on error
	Inserts            WriteResult
	Updates            WriteResult
	StartedAt          time.Time
	FinishedAt         time.Time
}

// Inserted returns the number of new profiles stored.
func (r *BatchReport) Inserted() int {
	return r.Inserts.Succeeded()
}

// Updated returns the number of existing profiles updated.
func (r *BatchReport) Updated() int {
	return r.Updates.Succeeded()
}

// Failed returns the number of failed writes across inserts and updates.
func (r *BatchReport) Failed() int {
	return r.Inserts.Failed() + r.Updates.Failed()
}

// Err joins insert and update failures, or returns nil.
func (r *BatchReport) Err() error {
	return errors.Join(r.Inserts.Err(), r.Updates.Err())
}

// RunRecord condenses the report for the run ledger.
func (r *BatchReport) RunRecord() *RunRecord {
	return &RunRecord{
		Source:     r.Source,
		RunID:      r.RunID,
		Received:   r.Received,
		Suppressed: r.Suppressed,
		Inserted:   r.Inserted(),
		Updated:    r.Updated(),
		Failed:     r.Failed(),
		FinishedAt: r.FinishedAt,
	}
}
