package service_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	api "github.com/conveyor-dev/conveyor/api/v1alpha1"
	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/queue"
	"github.com/conveyor-dev/conveyor/internal/scheduler"
	"github.com/conveyor-dev/conveyor/internal/service"
	"github.com/conveyor-dev/conveyor/internal/store"
)

var _ = Describe("job service", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		jobSrv *service.JobService
	)

	request := func(workerTypes ...string) *api.JobRequest {
		req := &api.JobRequest{}
		for _, wt := range workerTypes {
			req.JobWorkers = append(req.JobWorkers, api.WorkerArgument{
				WorkerType: wt,
				Spec:       json.RawMessage(`{"repository":"https://example.com/linux.git","commit":"deadbeef"}`),
			})
		}
		return req
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
		cfg := config.NewDefault()
		cfg.Service.MaxPageSize = 3
		engine := scheduler.NewEngine(cfg, s, queue.NewInMemory(), nil)
		jobSrv = service.NewJobService(s, engine, cfg.Service.MaxPageSize)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from job_tags;")
		gormdb.Exec("DELETE from job_stages;")
		gormdb.Exec("DELETE from jobs;")
	})

	Context("create", func() {
		It("returns the full context of the created job", func() {
			job, err := jobSrv.CreateJob(context.TODO(), request("build", "execute"))
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(api.JobStatusInProgress))
			Expect(job.JobWorkers).To(HaveLen(2))
		})

		It("rejects an empty pipeline as invalid", func() {
			_, err := jobSrv.CreateJob(context.TODO(), &api.JobRequest{})
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidRequest{}))
		})

		It("rejects an unknown worker type as invalid", func() {
			_, err := jobSrv.CreateJob(context.TODO(), request("paint"))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidRequest{}))
		})
	})

	Context("get", func() {
		It("maps a missing job to not found", func() {
			_, err := jobSrv.GetJob(context.TODO(), api.JobID(4242))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})

	Context("list", func() {
		It("caps the page size at the configured maximum", func() {
			for i := 0; i < 5; i++ {
				_, err := jobSrv.CreateJob(context.TODO(), request("build"))
				Expect(err).To(BeNil())
			}

			result, err := jobSrv.ListJobs(context.TODO(), service.ListJobsParams{Limit: 100})
			Expect(err).To(BeNil())
			Expect(result.PageSize).To(Equal(3))
			Expect(result.Total).To(Equal(int64(5)))
			Expect(result.OffsetNextPage).To(Equal(3))
		})

		It("continues from the next page offset", func() {
			for i := 0; i < 5; i++ {
				_, err := jobSrv.CreateJob(context.TODO(), request("build"))
				Expect(err).To(BeNil())
			}

			first, err := jobSrv.ListJobs(context.TODO(), service.ListJobsParams{})
			Expect(err).To(BeNil())

			second, err := jobSrv.ListJobs(context.TODO(), service.ListJobsParams{Skip: first.OffsetNextPage})
			Expect(err).To(BeNil())
			Expect(second.PageSize).To(Equal(2))
			Expect(second.OffsetNextPage).To(Equal(5))
		})

		It("filters by status", func() {
			job, err := jobSrv.CreateJob(context.TODO(), request("build"))
			Expect(err).To(BeNil())
			_, err = jobSrv.CancelJob(context.TODO(), job.JobID)
			Expect(err).To(BeNil())
			_, err = jobSrv.CreateJob(context.TODO(), request("build"))
			Expect(err).To(BeNil())

			result, err := jobSrv.ListJobs(context.TODO(), service.ListJobsParams{Statuses: []string{string(api.JobStatusAborted)}})
			Expect(err).To(BeNil())
			Expect(result.PageSize).To(Equal(1))
			Expect(result.Page[0].JobID).To(Equal(job.JobID))
		})
	})

	Context("cancel", func() {
		It("returns a terminal job unchanged", func() {
			job, err := jobSrv.CreateJob(context.TODO(), request("build"))
			Expect(err).To(BeNil())
			_, err = jobSrv.CancelJob(context.TODO(), job.JobID)
			Expect(err).To(BeNil())

			again, err := jobSrv.CancelJob(context.TODO(), job.JobID)
			Expect(err).To(BeNil())
			Expect(again.Status).To(Equal(api.JobStatusAborted))
		})

		It("maps a missing job to not found", func() {
			_, err := jobSrv.CancelJob(context.TODO(), api.JobID(4242))
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})
	})

	Context("restart", func() {
		It("maps an active job to a conflict", func() {
			job, err := jobSrv.CreateJob(context.TODO(), request("build"))
			Expect(err).To(BeNil())

			_, err = jobSrv.RestartJob(context.TODO(), job.JobID, 0)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrJobStateConflict{}))
		})

		It("maps an out-of-range stage to an invalid request", func() {
			job, err := jobSrv.CreateJob(context.TODO(), request("build"))
			Expect(err).To(BeNil())
			_, err = jobSrv.CancelJob(context.TODO(), job.JobID)
			Expect(err).To(BeNil())

			_, err = jobSrv.RestartJob(context.TODO(), job.JobID, 3)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidRequest{}))
		})
	})
})
