package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteResult(t *testing.T) {
	boom := errors.New("boom")

	var r WriteResult
	r.Record(1, "email:a@example.com", nil)
	r.Record(2, "email:b@example.com", boom)
	r.Record(3, "cookie:c", nil)

	assert.Equal(t, 2, r.Succeeded())
	assert.Equal(t, 1, r.Failed())
	assert.ErrorIs(t, r.Err(), boom)
	assert.Contains(t, r.Err().Error(), "email:b@example.com")
}

func TestWriteResult_Nil(t *testing.T) {
	var r *WriteResult
	assert.Zero(t, r.Succeeded())
	assert.Zero(t, r.Failed())
	assert.NoError(t, r.Err())
}

func TestBatchReport(t *testing.T) {
	boom := errors.New("disk full")
	report := &BatchReport{RunID: "r1", Source: "batch.csv", Received: 4, Suppressed: 1}
	report.Inserts.Record(1, "email:a@example.com", nil)
	report.Inserts.Record(2, "email:b@example.com", boom)
	report.Updates.Record(3, "email:c@example.com", nil)

	assert.Equal(t, 1, report.Inserted())
	assert.Equal(t, 1, report.Updated())
	assert.Equal(t, 1, report.Failed())
	assert.ErrorIs(t, report.Err(), boom)

	run := report.RunRecord()
	assert.Equal(t, "batch.csv", run.Source)
	assert.Equal(t, 1, run.Suppressed)
	assert.Equal(t, 1, run.Failed)
}
