package hook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/charmed-5g/upf-operator/pkg/hook"
)

type recordedCall struct {
	Name string
	Args []string
}

type fakeRunner struct {
	calls  []recordedCall
	output []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{Name: name, Args: args})
	return f.output, f.err
}

func TestStatusSet(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status   string
		message  string
		wantArgs []string
	}{
		"waiting with message": {
			status:   hook.StatusWaiting,
			message:  "Waiting for bessd container to be ready",
			wantArgs: []string{"waiting", "Waiting for bessd container to be ready"},
		},
		"active without message": {
			status:   hook.StatusActive,
			wantArgs: []string{"active"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{}
			tool := hook.NewTool(runner)

			if err := tool.StatusSet(context.Background(), tc.status, tc.message); err != nil {
				t.Fatalf("StatusSet() error = %v", err)
			}
			want := []recordedCall{{Name: "status-set", Args: tc.wantArgs}}
			if diff := cmp.Diff(want, runner.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRelationIDs(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{output: []byte(`["upf:0","upf:3"]`)}
	tool := hook.NewTool(runner)

	ids, err := tool.RelationIDs(context.Background(), "upf")
	if err != nil {
		t.Fatalf("RelationIDs() error = %v", err)
	}
	if diff := cmp.Diff([]string{"upf:0", "upf:3"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	wantCall := recordedCall{Name: "relation-ids", Args: []string{"--format=json", "upf"}}
	if diff := cmp.Diff([]recordedCall{wantCall}, runner.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRelationSet(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	tool := hook.NewTool(runner)

	err := tool.RelationSet(context.Background(), "upf:0", map[string]string{
		"url": "upf-operator.whatever.svc.cluster.local",
	})
	if err != nil {
		t.Fatalf("RelationSet() error = %v", err)
	}
	wantCall := recordedCall{
		Name: "relation-set",
		Args: []string{"-r", "upf:0", "--app", "url=upf-operator.whatever.svc.cluster.local"},
	}
	if diff := cmp.Diff([]recordedCall{wantCall}, runner.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestToolErrorsPropagate(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tool := hook.NewTool(&fakeRunner{err: errBoom})

	if err := tool.StatusSet(context.Background(), hook.StatusActive, ""); !errors.Is(err, errBoom) {
		t.Errorf("StatusSet() error = %v, want %v", err, errBoom)
	}
	if _, err := tool.RelationIDs(context.Background(), "upf"); !errors.Is(err, errBoom) {
		t.Errorf("RelationIDs() error = %v, want %v", err, errBoom)
	}
	if err := tool.RelationSet(context.Background(), "upf:0", nil); !errors.Is(err, errBoom) {
		t.Errorf("RelationSet() error = %v, want %v", err, errBoom)
	}
	if _, err := tool.ConfigGet(context.Background()); !errors.Is(err, errBoom) {
		t.Errorf("ConfigGet() error = %v, want %v", err, errBoom)
	}
}

func TestEnvironmentFromProcess(t *testing.T) {
	tests := map[string]struct {
		unit    string
		model   string
		want    hook.Environment
		wantErr bool
	}{
		"unit and model set": {
			unit:  "upf-operator/0",
			model: "whatever",
			want:  hook.Environment{ApplicationName: "upf-operator", ModelName: "whatever"},
		},
		"missing unit":  {model: "whatever", wantErr: true},
		"missing model": {unit: "upf-operator/0", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JUJU_UNIT_NAME", tc.unit)
			t.Setenv("JUJU_MODEL_NAME", tc.model)

			got, err := hook.EnvironmentFromProcess()
			if (err != nil) != tc.wantErr {
				t.Fatalf("EnvironmentFromProcess() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && got != tc.want {
				t.Errorf("EnvironmentFromProcess() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestHostname(t *testing.T) {
	t.Parallel()

	env := hook.Environment{ApplicationName: "upf-operator", ModelName: "whatever"}
	want := "upf-operator.whatever.svc.cluster.local"
	if got := env.Hostname(); got != want {
		t.Errorf("Hostname() = %q, want %q", got, want)
	}
}
