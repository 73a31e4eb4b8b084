package mqtt

import (
	"errors"
	"testing"
)

func TestTopics(t *testing.T) {
	var def Topics
	if def.Requests() != "iesdispatch/requests" {
		t.Fatalf("default prefix not applied: %s", def.Requests())
	}
	tp := Topics{Prefix: "site/"}
	if got := tp.Schedule("tx", "bat", "electricity", "level"); got != "site/schedule/tx/bat/electricity/level" {
		t.Fatalf("schedule topic %s", got)
	}
	if tp.Run("tx") != "site/runs/tx" || tp.Window("tx") != "site/windows/tx" || tp.Replies() != "site/replies" {
		t.Fatal("unexpected topics")
	}
}

func TestRunRequestValidate(t *testing.T) {
	if err := (RunRequest{RequestID: "1", Case: "texas"}).Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	for _, r := range []RunRequest{{Case: "texas"}, {RequestID: "1"}, {RequestID: "1", Case: "../etc"}} {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%+v: expected ErrInvalidRequest, got %v", r, err)
		}
	}
}
