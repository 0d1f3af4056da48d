package launchd

import (
	"context"
	"reflect"
	"testing"

	"github.com/breeze-rmm/adm/internal/executor/executortest"
)

const dsclFixture = `_amavisd                 83
_analyticsd              263
daemon                   1
nobody                   -2
root                     0
alice                    501
bob                      502
_mbsetupuser             248
guest                    201
`

func dsclRunner() *executortest.Runner {
	return executortest.New().On(". -list /Users UniqueID", executortest.Response{Stdout: dsclFixture})
}

func TestSystemUIDs(t *testing.T) {
	uids, err := SystemUIDs(context.Background(), dsclRunner())
	if err != nil {
		t.Fatalf("SystemUIDs: %v", err)
	}
	want := []UID{83, 263, 1, 0, 501, 502, 248, 201}
	if !reflect.DeepEqual(uids, want) {
		t.Fatalf("uids = %v, want %v", uids, want)
	}
}

func TestSalientSystemUIDs(t *testing.T) {
	uids, err := SalientSystemUIDs(context.Background(), dsclRunner())
	if err != nil {
		t.Fatalf("SalientSystemUIDs: %v", err)
	}
	want := []UID{501, 502}
	if !reflect.DeepEqual(uids, want) {
		t.Fatalf("uids = %v, want %v", uids, want)
	}
}

func TestAccountsFailure(t *testing.T) {
	runner := executortest.New()
	runner.Default = executortest.Response{Exit: 1, Stderr: "eDSRecordNotFound"}
	if _, err := Accounts(context.Background(), runner); KindOf(err) != KindIO {
		t.Fatalf("expected KindIO, got %v", err)
	}
}
