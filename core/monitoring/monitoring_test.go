package monitoring

import (
	"errors"
	"testing"
	"time"
)

type recorder struct {
	errs      []error
	tags      []map[string]string
	recovered []any
	flushed   bool
}

func (r *recorder) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}
func (r *recorder) Recover()            {}
func (r *recorder) RecoverValue(v any)  { r.recovered = append(r.recovered, v) }
func (r *recorder) Flush(time.Duration) { r.flushed = true }

func TestGlobalMonitor(t *testing.T) {
	rec := &recorder{}
	Init(rec)
	t.Cleanup(func() { Init(nil) })

	CaptureException(nil, nil)
	CaptureException(errors.New("infeasible"), map[string]string{"state": "TX"})
	Flush(time.Second)

	if len(rec.errs) != 1 || rec.tags[0]["state"] != "TX" {
		t.Fatalf("unexpected captures %+v", rec.errs)
	}
	if !rec.flushed {
		t.Fatal("flush not forwarded")
	}
}

func TestRecoverRepanics(t *testing.T) {
	rec := &recorder{}
	Init(rec)
	t.Cleanup(func() { Init(nil) })

	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("expected re-panic, got %v", r)
		}
		if len(rec.recovered) != 1 {
			t.Fatalf("panic not reported")
		}
	}()
	func() {
		defer Recover()
		panic("boom")
	}()
}
