package scheduler

import (
	"encoding/json"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/store/model"
)

const refEnvelopeKey = "$artifact"

// collectRefs walks a stage argument and returns every artifact
// reference it contains, in document order. Used at submission time to
// reject pipelines with forward or self references.
func collectRefs(arg api.WorkerArgument) ([]api.ArtifactRef, error) {
	if len(arg.Spec) == 0 {
		return nil, nil
	}
	var root any
	if err := json.Unmarshal(arg.Spec, &root); err != nil {
		return nil, err
	}
	var refs []api.ArtifactRef
	collectNode(root, &refs)
	return refs, nil
}

func collectNode(node any, refs *[]api.ArtifactRef) {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := asRef(v); ok {
			*refs = append(*refs, ref)
			return
		}
		for _, child := range v {
			collectNode(child, refs)
		}
	case []any:
		for _, child := range v {
			collectNode(child, refs)
		}
	}
}

// resolveArgument rewrites every artifact reference in the stage
// argument into the concrete resource registered by the referenced
// stage. Resolution happens strictly before dispatch: workers receive
// arguments with no symbolic content left.
func resolveArgument(arg api.WorkerArgument, stages []model.JobStage, current int) (api.WorkerArgument, error) {
	if len(arg.Spec) == 0 {
		return arg, nil
	}
	var root any
	if err := json.Unmarshal(arg.Spec, &root); err != nil {
		return arg, NewUnresolvedReferenceError("stage %d argument is not valid json: %v", current, err)
	}

	resolved, err := resolveNode(root, func(ref api.ArtifactRef) (api.JobResource, error) {
		return lookupResource(ref, stages, current)
	})
	if err != nil {
		return arg, err
	}

	raw, err := json.Marshal(resolved)
	if err != nil {
		return arg, err
	}
	return api.WorkerArgument{WorkerType: arg.WorkerType, Spec: raw}, nil
}

func resolveNode(node any, lookup func(api.ArtifactRef) (api.JobResource, error)) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := asRef(v); ok {
			res, err := lookup(ref)
			if err != nil {
				return nil, err
			}
			return map[string]any{"key": res.Key, "storageUri": res.StorageUri}, nil
		}
		out := make(map[string]any, len(v))
		for key, child := range v {
			resolved, err := resolveNode(child, lookup)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, child := range v {
			resolved, err := resolveNode(child, lookup)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil
	default:
		return node, nil
	}
}

// asRef recognizes the reference envelope {"$artifact": {"stage": N,
// "key": K}}. Anything else, including envelopes with extra siblings,
// is treated as plain data.
func asRef(node map[string]any) (api.ArtifactRef, bool) {
	if len(node) != 1 {
		return api.ArtifactRef{}, false
	}
	inner, ok := node[refEnvelopeKey]
	if !ok {
		return api.ArtifactRef{}, false
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return api.ArtifactRef{}, false
	}
	var ref api.ArtifactRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return api.ArtifactRef{}, false
	}
	if ref.Key == "" {
		return api.ArtifactRef{}, false
	}
	return ref, true
}

func lookupResource(ref api.ArtifactRef, stages []model.JobStage, current int) (api.JobResource, error) {
	if ref.Stage < 0 || ref.Stage >= current {
		return api.JobResource{}, NewUnresolvedReferenceError("stage %d references stage %d, which does not precede it", current, ref.Stage)
	}
	stage := stages[ref.Stage]
	if !stage.HasResult() {
		return api.JobResource{}, NewUnresolvedReferenceError("stage %d has no result to resolve %q from", ref.Stage, ref.Key)
	}
	var result api.JobResult
	if err := json.Unmarshal(stage.Result, &result); err != nil {
		return api.JobResource{}, NewUnresolvedReferenceError("stage %d result is not readable: %v", ref.Stage, err)
	}
	res, ok := result.Resources[ref.Key]
	if !ok {
		return api.JobResource{}, NewUnresolvedReferenceError("stage %d registered no artifact %q", ref.Stage, ref.Key)
	}
	return res, nil
}
