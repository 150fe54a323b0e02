package postgres_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/storage/postgres"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("STRATA_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("STRATA_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	var (
		driver *postgres.Driver
		ctx    context.Context
		t0     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		dsn := connStr()

		var err error
		driver, err = postgres.NewDriver(ctx, dsn, memory.TierLongTerm)
		Expect(err).NotTo(HaveOccurred())

		// Clean the table before each test for isolation.
		items, err := driver.List(ctx, memory.Filter{})
		Expect(err).NotTo(HaveOccurred())
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		_, err = driver.DeleteBatch(ctx, ids)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	It("round-trips an item", func() {
		level := 2.0
		_, err := driver.Put(ctx, &memory.Item{
			ID:         "a",
			Content:    "postgres item",
			Tags:       []string{"db"},
			Importance: 0.6,
			Embedding:  []float32{1, 0},
			CreatedAt:  t0,
			Metadata:   memory.Metadata{Strength: 0.5, ReinforcementLevel: &level},
		})
		Expect(err).NotTo(HaveOccurred())

		got, err := driver.Get(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Content).To(Equal("postgres item"))
		Expect(got.Tags).To(Equal([]string{"db"}))
		Expect(got.Embedding).To(Equal([]float32{1, 0}))
		Expect(got.CreatedAt.Equal(t0)).To(BeTrue())
		Expect(got.LastAccessedAt.IsZero()).To(BeTrue())
		Expect(got.Metadata.Strength).To(Equal(0.5))
		Expect(*got.Metadata.ReinforcementLevel).To(Equal(2.0))
	})

	It("returns NotFoundError for unknown ids", func() {
		_, err := driver.Get(ctx, "missing")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("filters by tag containment", func() {
		_, err := driver.PutBatch(ctx, []*memory.Item{
			{ID: "a", Tags: []string{"x", "y"}, CreatedAt: t0},
			{ID: "b", Tags: []string{"y"}, CreatedAt: t0.Add(time.Minute)},
		})
		Expect(err).NotTo(HaveOccurred())

		items, err := driver.List(ctx, memory.Filter{Tags: []string{"x"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(items).To(HaveLen(1))
		Expect(items[0].ID).To(Equal("a"))
	})

	It("deletes in batches", func() {
		_, err := driver.PutBatch(ctx, []*memory.Item{
			{ID: "a", CreatedAt: t0},
			{ID: "b", CreatedAt: t0},
		})
		Expect(err).NotTo(HaveOccurred())

		n, err := driver.DeleteBatch(ctx, []string{"a", "b", "c"})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))

		stats, err := driver.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Count).To(Equal(0))
	})
})
