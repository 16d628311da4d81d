package workstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/streadway/amqp"

	"github.com/dispatchcore/bulk-dispatch-service/internal/domain"
)

func TestTerminalWrapsAndUnwraps(t *testing.T) {
	cause := errors.New("bad payload")
	err := Terminal(cause)

	if !IsTerminal(err) {
		t.Error("expected a terminal error")
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to survive unwrapping")
	}
	if err.Error() != cause.Error() {
		t.Errorf("expected message %q, got %q", cause.Error(), err.Error())
	}
}

func TestTerminalNilAndPlainErrors(t *testing.T) {
	if Terminal(nil) != nil {
		t.Error("expected Terminal(nil) to stay nil")
	}
	if IsTerminal(nil) {
		t.Error("nil is not terminal")
	}
	if IsTerminal(errors.New("gateway timeout")) {
		t.Error("a plain error must stay retryable")
	}
}

func TestTerminalSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("handling job: %w", Terminal(errors.New("contract gone")))
	if !IsTerminal(err) {
		t.Error("expected terminal classification through fmt.Errorf wrapping")
	}
}

func TestRetryCountHeaderShapes(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"no headers", nil, 0},
		{"missing key", amqp.Table{}, 0},
		{"int32", amqp.Table{retryCountHeader: int32(2)}, 2},
		{"int64", amqp.Table{retryCountHeader: int64(3)}, 3},
		{"int", amqp.Table{retryCountHeader: 4}, 4},
		{"unexpected type", amqp.Table{retryCountHeader: "5"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retryCount(amqp.Delivery{Headers: tt.headers})
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestSampleJobExtractsIdentifyingFields(t *testing.T) {
	body := []byte(`{"jobId":"j-1","contractId":7,"channelId":"ch-1","address":"a@x.test"}`)

	job := sampleJob(body)
	if job.JobID != "j-1" || job.ContractID != 7 || job.ChannelID != "ch-1" {
		t.Errorf("unexpected sample: %+v", job)
	}

	empty := sampleJob([]byte("not json"))
	if empty.JobID != "" || empty.ContractID != 0 {
		t.Errorf("expected an empty sample for a bad payload, got %+v", empty)
	}
}

func TestActiveRegistryTracksPerLane(t *testing.T) {
	r := newActiveRegistry()

	r.Add("lane-a", 1, domain.ActiveJob{JobID: "j-1"})
	r.Add("lane-a", 2, domain.ActiveJob{JobID: "j-2"})
	r.Add("lane-b", 1, domain.ActiveJob{JobID: "j-3"})

	if got := r.Count("lane-a"); got != 2 {
		t.Errorf("expected 2 active on lane-a, got %d", got)
	}
	if got := r.Count("lane-b"); got != 1 {
		t.Errorf("expected 1 active on lane-b, got %d", got)
	}

	r.Remove("lane-a", 1)
	if got := r.Count("lane-a"); got != 1 {
		t.Errorf("expected 1 active after removal, got %d", got)
	}

	sample := r.Sample("lane-a", 10)
	if len(sample) != 1 || sample[0].JobID != "j-2" {
		t.Errorf("unexpected sample: %+v", sample)
	}

	if got := len(r.Sample("lane-b", 0)); got != 0 {
		t.Errorf("expected an empty sample with limit 0, got %d", got)
	}
}
