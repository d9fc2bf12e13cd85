package v1alpha1

import (
	"encoding/json"
	"fmt"
)

// Recognized worker kinds. The scheduler routes a stage to the queue
// named after its worker type; the set of deployable types comes from
// configuration, these are the ones with a typed spec.
const (
	WorkerTypeBuild    = "build"
	WorkerTypeExecute  = "execute"
	WorkerTypePrecheck = "precheck"
)

// ArtifactRef is a symbolic reference to an artifact produced by an
// earlier stage of the same pipeline: "the resource registered under
// Key in stage Stage's result". References are resolved by the
// scheduler strictly before dispatch.
type ArtifactRef struct {
	Stage int    `json:"stage"`
	Key   string `json:"key"`
}

// refEnvelope is the wire form of a symbolic reference inside a stage
// argument: {"$artifact": {"stage": 0, "key": "image"}}.
const refEnvelopeKey = "$artifact"

// ArtifactValue holds either a symbolic reference (as submitted) or the
// concrete resource it resolved to (as dispatched). Exactly one side is
// set.
type ArtifactValue struct {
	Ref      *ArtifactRef
	Resource *JobResource
}

func (v ArtifactValue) MarshalJSON() ([]byte, error) {
	if v.Ref != nil {
		return json.Marshal(map[string]*ArtifactRef{refEnvelopeKey: v.Ref})
	}
	if v.Resource != nil {
		return json.Marshal(v.Resource)
	}
	return []byte("null"), nil
}

func (v *ArtifactValue) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if raw, ok := probe[refEnvelopeKey]; ok {
		ref := &ArtifactRef{}
		if err := json.Unmarshal(raw, ref); err != nil {
			return err
		}
		v.Ref = ref
		v.Resource = nil
		return nil
	}
	res := &JobResource{}
	if err := json.Unmarshal(data, res); err != nil {
		return err
	}
	v.Resource = res
	v.Ref = nil
	return nil
}

// WorkerArgument is one stage's input: the worker type that must
// execute it and a worker-type specific spec. Known types decode to a
// typed schema; unknown types are carried verbatim for forward
// compatibility.
type WorkerArgument struct {
	WorkerType string          `json:"workerType" validate:"required"`
	Spec       json.RawMessage `json:"spec,omitempty"`
}

// BuildSpec is the argument schema of the build stage: compile an
// artifact from a source tree.
type BuildSpec struct {
	Repository   string            `json:"repository"`
	Commit       string            `json:"commit"`
	Architecture string            `json:"arch,omitempty"`
	BuildConfig  map[string]string `json:"buildConfig,omitempty"`
	Patch        string            `json:"patch,omitempty"`
}

// ExecuteSpec is the argument schema of the execute stage: run a
// payload in an isolated environment against a previously built image.
type ExecuteSpec struct {
	Image       ArtifactValue `json:"image"`
	Payload     string        `json:"payload"`
	PayloadType string        `json:"payloadType,omitempty"`
	MachineType string        `json:"machineType,omitempty"`
	Instances   int           `json:"instances,omitempty"`
	RestartTime string        `json:"restartTime,omitempty"`
}

// PrecheckSpec is the argument schema of the precheck stage: validate
// a source revision before spending build time on it.
type PrecheckSpec struct {
	Repository string `json:"repository"`
	Commit     string `json:"commit"`
}

// DecodeSpec returns the typed schema for recognized worker types and a
// generic map for everything else.
func (a WorkerArgument) DecodeSpec() (any, error) {
	if len(a.Spec) == 0 {
		return nil, nil
	}
	var dst any
	switch a.WorkerType {
	case WorkerTypeBuild:
		dst = &BuildSpec{}
	case WorkerTypeExecute:
		dst = &ExecuteSpec{}
	case WorkerTypePrecheck:
		dst = &PrecheckSpec{}
	default:
		dst = &map[string]any{}
	}
	if err := json.Unmarshal(a.Spec, dst); err != nil {
		return nil, fmt.Errorf("decoding %s spec: %w", a.WorkerType, err)
	}
	return dst, nil
}

// NewWorkerArgument builds an argument from a typed spec.
func NewWorkerArgument(workerType string, spec any) (WorkerArgument, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return WorkerArgument{}, fmt.Errorf("encoding %s spec: %w", workerType, err)
	}
	return WorkerArgument{WorkerType: workerType, Spec: raw}, nil
}
