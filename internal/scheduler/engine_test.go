package scheduler_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/queue"
	"github.com/conveyor-dev/conveyor/internal/scheduler"
	"github.com/conveyor-dev/conveyor/internal/store"
	"github.com/conveyor-dev/conveyor/internal/store/model"
)

var _ = Describe("engine", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		q      *queue.InMemory
		engine *scheduler.Engine
	)

	receive := func(queueName string, dst any) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		deliveries, err := q.Consume(ctx, queueName)
		Expect(err).To(BeNil())
		select {
		case d := <-deliveries:
			Expect(queue.Decode(d.Body(), dst)).To(BeNil())
			Expect(d.Ack()).To(BeNil())
		case <-ctx.Done():
			Fail("no message on " + queueName)
		}
	}

	buildRequest := func(workerTypes ...string) *api.JobRequest {
		req := &api.JobRequest{}
		for _, wt := range workerTypes {
			req.JobWorkers = append(req.JobWorkers, api.WorkerArgument{
				WorkerType: wt,
				Spec:       json.RawMessage(`{"repository":"https://example.com/linux.git","commit":"deadbeef"}`),
			})
		}
		return req
	}

	successResult := func(job *model.Job, stageIndex int, resources map[string]api.JobResource) *queue.ResultMessage {
		return &queue.ResultMessage{
			JobID:          api.JobID(job.ID),
			StageIndex:     stageIndex,
			WorkerType:     job.Stages[stageIndex].WorkerType,
			WorkerHostname: "host-1",
			Result: api.JobResult{
				WorkerType: job.Stages[stageIndex].WorkerType,
				Resources:  resources,
			},
		}
	}

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db

		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		q = queue.NewInMemory()
		engine = scheduler.NewEngine(config.NewDefault(), s, q, nil)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from job_tags;")
		gormdb.Exec("DELETE from job_stages;")
		gormdb.Exec("DELETE from jobs;")
	})

	Context("create", func() {
		It("dispatches the first stage", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build", "execute"))
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(string(api.JobStatusInProgress)))
			Expect(job.CurrentWorker).To(Equal(0))

			var msg queue.DispatchMessage
			receive("work.build", &msg)
			Expect(msg.JobID).To(Equal(api.JobID(job.ID)))
			Expect(msg.StageIndex).To(Equal(0))
			Expect(msg.WorkerType).To(Equal("build"))
		})

		It("rejects an unknown worker type", func() {
			_, err := engine.CreateJob(context.TODO(), buildRequest("paint"))
			Expect(err).To(BeAssignableToTypeOf(&scheduler.InvalidPipelineError{}))
		})

		It("rejects an empty pipeline", func() {
			_, err := engine.CreateJob(context.TODO(), &api.JobRequest{})
			Expect(err).To(BeAssignableToTypeOf(&scheduler.InvalidPipelineError{}))
		})

		It("rejects a forward reference", func() {
			req := buildRequest("build", "execute")
			req.JobWorkers[0].Spec = json.RawMessage(`{"image":{"$artifact":{"stage":1,"key":"image"}}}`)
			_, err := engine.CreateJob(context.TODO(), req)
			Expect(err).To(BeAssignableToTypeOf(&scheduler.InvalidPipelineError{}))
		})

		It("rejects a self reference", func() {
			req := buildRequest("build", "execute")
			req.JobWorkers[1].Spec = json.RawMessage(`{"image":{"$artifact":{"stage":1,"key":"image"}}}`)
			_, err := engine.CreateJob(context.TODO(), req)
			Expect(err).To(BeAssignableToTypeOf(&scheduler.InvalidPipelineError{}))
		})
	})

	Context("results", func() {
		It("advances and dispatches the next stage", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build", "execute"))
			Expect(err).To(BeNil())

			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, nil))).To(BeNil())

			updated, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(string(api.JobStatusInProgress)))
			Expect(updated.CurrentWorker).To(Equal(1))
			Expect(updated.Stages[0].HasResult()).To(BeTrue())

			var msg queue.DispatchMessage
			receive("work.execute", &msg)
			Expect(msg.StageIndex).To(Equal(1))
		})

		It("finishes on the last stage", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build"))
			Expect(err).To(BeNil())

			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, nil))).To(BeNil())

			updated, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(string(api.JobStatusFinished)))
			Expect(updated.CurrentWorker).To(Equal(0))
		})

		It("absorbs a redelivered result without advancing twice", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build", "execute", "execute"))
			Expect(err).To(BeNil())

			msg := successResult(job, 0, nil)
			Expect(engine.ApplyResult(context.TODO(), msg)).To(BeNil())

			afterFirst, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			Expect(engine.ApplyResult(context.TODO(), msg)).To(BeNil())

			updated, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(updated.CurrentWorker).To(Equal(1))
			Expect(updated.Stages[1].HasResult()).To(BeFalse())
			Expect(updated.ModifiedTime.Equal(afterFirst.ModifiedTime)).To(BeTrue())
		})

		It("drops a stale stage index", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build", "execute"))
			Expect(err).To(BeNil())

			Expect(engine.ApplyResult(context.TODO(), successResult(job, 1, nil))).To(BeNil())

			updated, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(updated.CurrentWorker).To(Equal(0))
			Expect(updated.Stages[1].HasResult()).To(BeFalse())
		})

		It("drops a result for an unknown job", func() {
			Expect(engine.ApplyResult(context.TODO(), &queue.ResultMessage{
				JobID:      api.JobID(4242),
				StageIndex: 0,
				WorkerType: "build",
				Result:     api.JobResult{WorkerType: "build"},
			})).To(BeNil())
		})

		It("aborts on a worker exception", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build", "execute"))
			Expect(err).To(BeNil())

			msg := successResult(job, 0, nil)
			msg.Result.WorkerException = &api.WorkerException{Code: api.WorkerGeneralCode, Kind: "OOM"}
			Expect(engine.ApplyResult(context.TODO(), msg)).To(BeNil())

			updated, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(string(api.JobStatusAborted)))
			Expect(updated.CurrentWorker).To(Equal(0))
		})

		It("drops a late result for a finalized job", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build", "execute"))
			Expect(err).To(BeNil())

			_, err = engine.CancelJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, nil))).To(BeNil())

			updated, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(string(api.JobStatusAborted)))
		})
	})

	Context("references", func() {
		It("resolves an artifact reference before dispatch", func() {
			req := buildRequest("build", "execute")
			req.JobWorkers[1].Spec = json.RawMessage(`{"image":{"$artifact":{"stage":0,"key":"image"}},"payload":"run.sh"}`)
			job, err := engine.CreateJob(context.TODO(), req)
			Expect(err).To(BeNil())

			resources := map[string]api.JobResource{
				"image": {Key: "image", StorageUri: "s3://artifacts/00000001/0/image"},
			}
			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, resources))).To(BeNil())

			var msg queue.DispatchMessage
			receive("work.execute", &msg)

			var spec api.ExecuteSpec
			Expect(json.Unmarshal(msg.WorkerArgument.Spec, &spec)).To(BeNil())
			Expect(spec.Image.Resource).ToNot(BeNil())
			Expect(spec.Image.Resource.StorageUri).To(Equal("s3://artifacts/00000001/0/image"))
			Expect(spec.Image.Ref).To(BeNil())
		})

		It("aborts when the referenced artifact is missing", func() {
			req := buildRequest("build", "execute")
			req.JobWorkers[1].Spec = json.RawMessage(`{"image":{"$artifact":{"stage":0,"key":"missing"}}}`)
			job, err := engine.CreateJob(context.TODO(), req)
			Expect(err).To(BeNil())

			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, nil))).To(BeNil())

			updated, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(string(api.JobStatusAborted)))

			var result api.JobResult
			Expect(json.Unmarshal(updated.Stages[1].Result, &result)).To(BeNil())
			Expect(result.JobException).ToNot(BeNil())
			Expect(result.JobException.Code).To(Equal(api.UnresolvedReferenceCode))
		})
	})

	Context("claims", func() {
		It("records the executing hostname", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build"))
			Expect(err).To(BeNil())

			Expect(engine.ClaimStage(context.TODO(), &queue.ClaimMessage{
				JobID:          api.JobID(job.ID),
				StageIndex:     0,
				WorkerType:     "build",
				WorkerHostname: "host-7",
			})).To(BeNil())

			updated, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(updated.CurrentWorkerHostname).To(Equal("host-7"))
		})

		It("ignores a claim for a concluded stage", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build"))
			Expect(err).To(BeNil())
			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, nil))).To(BeNil())

			Expect(engine.ClaimStage(context.TODO(), &queue.ClaimMessage{
				JobID:          api.JobID(job.ID),
				StageIndex:     0,
				WorkerHostname: "host-9",
			})).To(BeNil())

			updated, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(string(api.JobStatusFinished)))
			Expect(updated.CurrentWorkerHostname).ToNot(Equal("host-9"))
		})
	})

	Context("cancel", func() {
		It("aborts the job and records the cancellation", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build", "execute"))
			Expect(err).To(BeNil())

			cancelled, err := engine.CancelJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(cancelled.Status).To(Equal(string(api.JobStatusAborted)))

			var result api.JobResult
			Expect(json.Unmarshal(cancelled.Stages[0].Result, &result)).To(BeNil())
			Expect(result.JobException).ToNot(BeNil())
			Expect(result.JobException.Code).To(Equal(api.JobCancelledCode))
		})

		It("notifies the executing host", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build"))
			Expect(err).To(BeNil())

			Expect(engine.ClaimStage(context.TODO(), &queue.ClaimMessage{
				JobID:          api.JobID(job.ID),
				StageIndex:     0,
				WorkerHostname: "host-3",
			})).To(BeNil())

			_, err = engine.CancelJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			var msg queue.ControlMessage
			receive("workers.host-3.control", &msg)
			Expect(msg.Command).To(Equal(queue.ControlAbort))
			Expect(msg.JobID).To(Equal(api.JobID(job.ID)))
		})

		It("leaves a finalized job untouched when cancelled again", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build"))
			Expect(err).To(BeNil())
			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, nil))).To(BeNil())

			finished, err := s.Job().Get(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			cancelled, err := engine.CancelJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			Expect(cancelled.Status).To(Equal(string(api.JobStatusFinished)))
			Expect(cancelled.ModifiedTime.Equal(finished.ModifiedTime)).To(BeTrue())
			Expect(cancelled.Stages[0].HasResult()).To(BeTrue())
		})
	})

	Context("restart", func() {
		It("re-runs an aborted job from the given stage", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build", "execute"))
			Expect(err).To(BeNil())
			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, nil))).To(BeNil())
			_, err = engine.CancelJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			restarted, err := engine.RestartJob(context.TODO(), job.ID, 1)
			Expect(err).To(BeNil())
			Expect(restarted.Status).To(Equal(string(api.JobStatusInProgress)))
			Expect(restarted.CurrentWorker).To(Equal(1))
			Expect(restarted.Stages[0].HasResult()).To(BeTrue())
			Expect(restarted.Stages[1].HasResult()).To(BeFalse())
		})

		It("restarts from the last stage when no stage is given", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build", "execute"))
			Expect(err).To(BeNil())
			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, nil))).To(BeNil())
			_, err = engine.CancelJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())

			restarted, err := engine.RestartJob(context.TODO(), job.ID, scheduler.RestartFromLast)
			Expect(err).To(BeNil())
			Expect(restarted.Status).To(Equal(string(api.JobStatusInProgress)))
			Expect(restarted.CurrentWorker).To(Equal(1))
			Expect(restarted.Stages[0].HasResult()).To(BeTrue())
		})

		It("rejects restarting an active job", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build"))
			Expect(err).To(BeNil())

			_, err = engine.RestartJob(context.TODO(), job.ID, 0)
			Expect(err).To(BeAssignableToTypeOf(&scheduler.JobActiveError{}))
		})

		It("rejects an out-of-range restart stage", func() {
			job, err := engine.CreateJob(context.TODO(), buildRequest("build"))
			Expect(err).To(BeNil())
			Expect(engine.ApplyResult(context.TODO(), successResult(job, 0, nil))).To(BeNil())

			_, err = engine.RestartJob(context.TODO(), job.ID, 5)
			Expect(err).To(BeAssignableToTypeOf(&scheduler.InvalidRestartError{}))
		})
	})
})
