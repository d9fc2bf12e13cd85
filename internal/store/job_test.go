package store_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/store"
	"github.com/conveyor-dev/conveyor/internal/store/model"
)

func newJobRequest(workerTypes ...string) *api.JobRequest {
	req := &api.JobRequest{Tags: map[string]string{"team": "kernel"}}
	for _, wt := range workerTypes {
		req.JobWorkers = append(req.JobWorkers, api.WorkerArgument{
			WorkerType: wt,
			Spec:       json.RawMessage(`{"repository":"https://example.com/repo.git","commit":"deadbeef"}`),
		})
	}
	return req
}

var _ = Describe("job store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

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

	AfterEach(func() {
		gormdb.Exec("DELETE from job_tags;")
		gormdb.Exec("DELETE from job_stages;")
		gormdb.Exec("DELETE from jobs;")
	})

	Context("create", func() {
		It("assigns sequential ids", func() {
			first, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
			Expect(err).To(BeNil())
			second, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
			Expect(err).To(BeNil())

			Expect(second.ID).To(Equal(first.ID + 1))
		})

		It("persists stages and tags", func() {
			created, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build", "execute"), time.Now().UTC()))
			Expect(err).To(BeNil())

			job, err := s.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(string(api.JobStatusPending)))
			Expect(job.CurrentWorker).To(Equal(0))
			Expect(job.Stages).To(HaveLen(2))
			Expect(job.Stages[0].WorkerType).To(Equal("build"))
			Expect(job.Stages[1].WorkerType).To(Equal("execute"))
			Expect(job.Tags).To(HaveLen(1))
		})
	})

	Context("get", func() {
		It("returns not found for a missing job", func() {
			_, err := s.Job().Get(context.TODO(), 4242)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})

		It("returns stages ordered by index", func() {
			created, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("precheck", "build", "execute"), time.Now().UTC()))
			Expect(err).To(BeNil())

			job, err := s.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			for i, stage := range job.Stages {
				Expect(stage.StageIndex).To(Equal(i))
			}
		})
	})

	Context("tags", func() {
		It("returns the tag map", func() {
			created, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
			Expect(err).To(BeNil())

			tags, err := s.Job().GetTags(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(tags).To(HaveKeyWithValue("team", "kernel"))
		})

		It("returns not found for a missing job", func() {
			_, err := s.Job().GetTags(context.TODO(), 4242)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("update", func() {
		It("persists status and stage results", func() {
			created, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build", "execute"), time.Now().UTC()))
			Expect(err).To(BeNil())

			_, err = s.Job().Update(context.TODO(), created.ID, func(job *model.Job) error {
				Expect(job.Stages[0].SetResult(&api.JobResult{WorkerType: "build"})).To(BeNil())
				job.Status = string(api.JobStatusWaiting)
				job.CurrentWorker = 1
				job.ModifiedTime = time.Now().UTC()
				return nil
			})
			Expect(err).To(BeNil())

			job, err := s.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(string(api.JobStatusWaiting)))
			Expect(job.CurrentWorker).To(Equal(1))
			Expect(job.Stages[0].HasResult()).To(BeTrue())
			Expect(job.Stages[1].HasResult()).To(BeFalse())
		})

		It("rolls back when the mutation fails", func() {
			created, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
			Expect(err).To(BeNil())

			_, err = s.Job().Update(context.TODO(), created.ID, func(job *model.Job) error {
				job.Status = string(api.JobStatusAborted)
				return store.ErrRecordNotFound
			})
			Expect(err).ToNot(BeNil())

			job, err := s.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(string(api.JobStatusPending)))
		})

		It("returns not found for a missing job", func() {
			_, err := s.Job().Update(context.TODO(), 4242, func(job *model.Job) error { return nil })
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("filters by status", func() {
			for i := 0; i < 3; i++ {
				_, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
				Expect(err).To(BeNil())
			}
			aborted, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
			Expect(err).To(BeNil())
			_, err = s.Job().Update(context.TODO(), aborted.ID, func(job *model.Job) error {
				job.Status = string(api.JobStatusAborted)
				return nil
			})
			Expect(err).To(BeNil())

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter().ByStatus(string(api.JobStatusAborted)), nil)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].ID).To(Equal(aborted.ID))
		})

		It("windows the listing", func() {
			for i := 0; i < 5; i++ {
				_, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
				Expect(err).To(BeNil())
			}

			opts := store.NewJobQueryOptions().
				WithSortOrder(store.SortByCreatedTime).
				WithOffset(2).
				WithLimit(2)
			jobs, err := s.Job().List(context.TODO(), nil, opts)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))

			total, err := s.Job().Count(context.TODO(), nil)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(int64(5)))
		})

		It("counts with the filter applied", func() {
			_, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
			Expect(err).To(BeNil())

			total, err := s.Job().Count(context.TODO(), store.NewJobQueryFilter().ByStatus(string(api.JobStatusFinished)))
			Expect(err).To(BeNil())
			Expect(total).To(Equal(int64(0)))
		})
	})

	Context("leftovers", func() {
		It("aborts every non-terminal job", func() {
			pending, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
			Expect(err).To(BeNil())
			finished, err := s.Job().Create(context.TODO(), *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
			Expect(err).To(BeNil())
			_, err = s.Job().Update(context.TODO(), finished.ID, func(job *model.Job) error {
				job.Status = string(api.JobStatusFinished)
				return nil
			})
			Expect(err).To(BeNil())

			Expect(s.Job().AbortLeftovers(context.TODO(), time.Now().UTC())).To(BeNil())

			job, err := s.Job().Get(context.TODO(), pending.ID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(string(api.JobStatusAborted)))

			job, err = s.Job().Get(context.TODO(), finished.ID)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(string(api.JobStatusFinished)))
		})
	})

	Context("transaction", func() {
		It("rolls back an uncommitted create", func() {
			ctx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = s.Job().Create(ctx, *model.NewJobFromApiRequest(newJobRequest("build"), time.Now().UTC()))
			Expect(err).To(BeNil())

			_, err = store.Rollback(ctx)
			Expect(err).To(BeNil())

			count := 0
			Expect(gormdb.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(0))
		})
	})
})
