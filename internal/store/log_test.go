package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/conveyor-dev/conveyor/internal/config"
	"github.com/conveyor-dev/conveyor/internal/store"
	"github.com/conveyor-dev/conveyor/internal/store/model"
)

var _ = Describe("log store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	insertJobLog := func(jobID uint64, seq int) {
		err := s.Log().InsertJobLog(context.TODO(), &model.JobLog{
			TimeStamp:      time.Now().UTC().Add(time.Duration(seq) * time.Second),
			JobID:          jobID,
			WorkerType:     "build",
			WorkerHostname: "host-1",
			Content:        json.RawMessage(fmt.Sprintf(`{"seq":%d}`, seq)),
		})
		Expect(err).To(BeNil())
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

	AfterEach(func() {
		gormdb.Exec("DELETE from system_logs;")
		gormdb.Exec("DELETE from job_logs;")
	})

	Context("system logs", func() {
		It("lists oldest first with the total", func() {
			for i := 0; i < 3; i++ {
				err := s.Log().InsertSystemLog(context.TODO(), &model.SystemLog{
					TimeStamp:      time.Now().UTC().Add(time.Duration(i) * time.Second),
					WorkerType:     "build",
					WorkerHostname: fmt.Sprintf("host-%d", i),
					Content:        json.RawMessage(`{"status":"alive"}`),
				})
				Expect(err).To(BeNil())
			}

			logs, total, err := s.Log().ListSystemLogs(context.TODO(), 0, 10)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(int64(3)))
			Expect(logs).To(HaveLen(3))
			Expect(logs[0].WorkerHostname).To(Equal("host-0"))
			Expect(logs[2].WorkerHostname).To(Equal("host-2"))
		})

		It("windows the listing", func() {
			for i := 0; i < 5; i++ {
				err := s.Log().InsertSystemLog(context.TODO(), &model.SystemLog{
					TimeStamp:      time.Now().UTC().Add(time.Duration(i) * time.Second),
					WorkerType:     "build",
					WorkerHostname: fmt.Sprintf("host-%d", i),
				})
				Expect(err).To(BeNil())
			}

			logs, total, err := s.Log().ListSystemLogs(context.TODO(), 3, 10)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(int64(5)))
			Expect(logs).To(HaveLen(2))
			Expect(logs[0].WorkerHostname).To(Equal("host-3"))
		})
	})

	Context("job logs", func() {
		It("restricts to one job", func() {
			insertJobLog(1, 0)
			insertJobLog(1, 1)
			insertJobLog(2, 2)

			jobID := uint64(1)
			logs, total, err := s.Log().ListJobLogs(context.TODO(), &jobID, 0, 10)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(int64(2)))
			Expect(logs).To(HaveLen(2))
			for _, l := range logs {
				Expect(l.JobID).To(Equal(jobID))
			}
		})

		It("lists across jobs when no job is given", func() {
			insertJobLog(1, 0)
			insertJobLog(2, 1)

			logs, total, err := s.Log().ListJobLogs(context.TODO(), nil, 0, 10)
			Expect(err).To(BeNil())
			Expect(total).To(Equal(int64(2)))
			Expect(logs).To(HaveLen(2))
			Expect(logs[0].JobID).To(Equal(uint64(1)))
		})
	})
})
