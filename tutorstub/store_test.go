package tutorstub_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/degreepathco/advisor/pkg/tutor"
	"github.com/degreepathco/advisor/tutorstub"
)

// storeBehavior runs the HistoryStore contract against any implementation.
func storeBehavior(newStore func() tutorstub.HistoryStore) {
	var (
		store tutorstub.HistoryStore
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	AfterEach(func() {
		store.Close()
	})

	It("lists an empty transcript for an unknown student", func() {
		messages, err := store.List(ctx, "ghost")
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(BeEmpty())
	})

	It("appends and lists messages in arrival order", func() {
		Expect(store.Append(ctx, "demo001", tutor.Message{Role: tutor.RoleStudent, Content: "first"})).To(Succeed())
		Expect(store.Append(ctx, "demo001", tutor.Message{Role: tutor.RoleTutor, Content: "second"})).To(Succeed())
		Expect(store.Append(ctx, "demo001", tutor.Message{Role: tutor.RoleStudent, Content: "third"})).To(Succeed())

		messages, err := store.List(ctx, "demo001")
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(3))
		Expect(messages[0].Content).To(Equal("first"))
		Expect(messages[1].Content).To(Equal("second"))
		Expect(messages[2].Content).To(Equal("third"))
	})

	It("keeps students' transcripts separate", func() {
		Expect(store.Append(ctx, "demo001", tutor.Message{Role: tutor.RoleStudent, Content: "alex"})).To(Succeed())
		Expect(store.Append(ctx, "demo002", tutor.Message{Role: tutor.RoleStudent, Content: "sarah"})).To(Succeed())

		messages, err := store.List(ctx, "demo001")
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(1))
		Expect(messages[0].Content).To(Equal("alex"))
	})

	It("clears only the requested student", func() {
		Expect(store.Append(ctx, "demo001", tutor.Message{Role: tutor.RoleStudent, Content: "a"})).To(Succeed())
		Expect(store.Append(ctx, "demo002", tutor.Message{Role: tutor.RoleStudent, Content: "b"})).To(Succeed())

		Expect(store.Clear(ctx, "demo001")).To(Succeed())

		messages, err := store.List(ctx, "demo001")
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(BeEmpty())

		messages, err = store.List(ctx, "demo002")
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(1))
	})

	It("clear is idempotent", func() {
		Expect(store.Clear(ctx, "demo001")).To(Succeed())
		Expect(store.Clear(ctx, "demo001")).To(Succeed())
	})

	It("computes stats across students", func() {
		Expect(store.Append(ctx, "demo001", tutor.Message{Role: tutor.RoleStudent, Content: "q"})).To(Succeed())
		Expect(store.Append(ctx, "demo001", tutor.Message{Role: tutor.RoleTutor, Content: "a"})).To(Succeed())
		Expect(store.Append(ctx, "demo002", tutor.Message{Role: tutor.RoleStudent, Content: "q"})).To(Succeed())

		stats, err := store.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.ActiveConversations).To(Equal(2))
		Expect(stats.TotalMessages).To(Equal(3))
		Expect(stats.MessagesPerStudent["demo001"]).To(Equal(2))
	})

	It("reports empty stats for a fresh store", func() {
		stats, err := store.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.ActiveConversations).To(BeZero())
		Expect(stats.TotalMessages).To(BeZero())
	})
}

var _ = Describe("MemoryStore", func() {
	storeBehavior(func() tutorstub.HistoryStore {
		return tutorstub.NewMemoryStore()
	})
})

var _ = Describe("SQLiteStore", func() {
	storeBehavior(func() tutorstub.HistoryStore {
		store, err := tutorstub.NewSQLiteStore(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return store
	})

	It("creates the database file on disk", func() {
		tmpDir := GinkgoT().TempDir()
		dbPath := filepath.Join(tmpDir, "history.db")

		store, err := tutorstub.NewSQLiteStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("persists messages across reopen", func() {
		tmpDir := GinkgoT().TempDir()
		dbPath := filepath.Join(tmpDir, "history.db")
		ctx := context.Background()

		store, err := tutorstub.NewSQLiteStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Append(ctx, "demo001", tutor.Message{Role: tutor.RoleStudent, Content: "kept"})).To(Succeed())
		Expect(store.Close()).To(Succeed())

		reopened, err := tutorstub.NewSQLiteStore(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		messages, err := reopened.List(ctx, "demo001")
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(1))
		Expect(messages[0].Content).To(Equal("kept"))
	})
})
