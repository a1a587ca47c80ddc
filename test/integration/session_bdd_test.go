//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/deepwork/internal/daemon"
	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
	"github.com/eliteGoblin/focusd/deepwork/internal/infra"
	"github.com/eliteGoblin/focusd/deepwork/internal/usecase"
	"github.com/eliteGoblin/focusd/deepwork/test/fixtures"
)

var _ = Describe("Focus session", func() {
	var (
		tmpDir   string
		hosts    *fixtures.FakeHostsFile
		store    *infra.HostsBlockStore
		pm       domain.ProcessManager
		guard    *usecase.ProcessGuard
		history  *infra.EncryptedHistory
		session  *usecase.SessionController
		registry domain.SessionRegistry
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "deepwork-integration-*")
		Expect(err).NotTo(HaveOccurred())

		hosts, err = fixtures.NewFakeHostsFile(tmpDir, "127.0.0.1 localhost\n", 0644)
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		store = infra.NewHostsBlockStore(infra.HostsConfig{Path: hosts.Path}, infra.NewFileSystemManager(), logger)
		pm = infra.NewProcessManager()
		guard = usecase.NewProcessGuard(pm, usecase.GuardConfig{
			PollInterval: 50 * time.Millisecond,
			KillTimeout:  2 * time.Second,
		}, logger)

		history, err = infra.OpenHistory(filepath.Join(tmpDir, "data"))
		Expect(err).NotTo(HaveOccurred())

		session = usecase.NewSessionController(usecase.ControllerConfig{
			TickInterval: 5 * time.Millisecond,
			PollInterval: 50 * time.Millisecond,
		}, store, guard, history, logger)
		registry = infra.NewFileRegistry(filepath.Join(tmpDir, "data"), pm)
	})

	AfterEach(func() {
		_ = session.Stop(context.Background())
		guard.Stop()
		history.Close()
		os.RemoveAll(tmpDir)
	})

	It("blocks websites and kills apps until the timer runs out", func() {
		app, err := fixtures.StartFakeApp(tmpDir, "dw-fake-app")
		Expect(err).NotTo(HaveOccurred())
		defer app.Kill()

		err = session.Start(context.Background(), usecase.StartRequest{
			Websites:        []string{"x.com"},
			Apps:            []string{"DW-FAKE-APP"},
			DurationMinutes: 1,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(store.ListBlocked()).To(Equal([]string{"x.com"}))
		Eventually(app.Alive, 5*time.Second, 20*time.Millisecond).Should(BeFalse())

		Eventually(session.Done(), 10*time.Second).Should(BeClosed())
		Expect(hosts.Content()).To(Equal("127.0.0.1 localhost\n"))
		Expect(guard.Running()).To(BeFalse())

		records, err := history.List(10)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Reason).To(Equal(domain.ReasonExpired))
		Expect(records[0].Websites).To(Equal([]string{"x.com"}))
	})

	It("restores the hosts file when stopped early", func() {
		err := session.Start(context.Background(), usecase.StartRequest{
			Websites:        []string{"x.com"},
			DurationMinutes: 30,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(hosts.Content()).To(ContainSubstring("127.0.0.1 x.com"))

		Expect(session.Stop(context.Background())).To(Succeed())
		Expect(hosts.Content()).To(Equal("127.0.0.1 localhost\n"))

		records, err := history.List(10)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Reason).To(Equal(domain.ReasonManual))
	})

	It("rejects a session without targets", func() {
		err := session.Start(context.Background(), usecase.StartRequest{DurationMinutes: 10})
		Expect(err).To(MatchError(domain.ErrInvalidInput))
		Expect(hosts.Content()).To(Equal("127.0.0.1 localhost\n"))
	})

	It("tears down and clears the registry when the runner is canceled", func() {
		runner := newRunner(session, guard, store, pm, registry)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			errCh <- runner.Run(ctx, usecase.StartRequest{Websites: []string{"x.com"}, DurationMinutes: 30})
		}()

		Eventually(func() (bool, error) { return registry.IsAlive() }, 5*time.Second).Should(BeTrue())
		Eventually(hosts.Content, 5*time.Second).Should(ContainSubstring("127.0.0.1 x.com"))

		cancel()
		Eventually(errCh, 5*time.Second).Should(Receive(BeNil()))

		Expect(hosts.Content()).To(Equal("127.0.0.1 localhost\n"))
		entry, err := registry.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(entry).To(BeNil())
	})

	It("leaves a live session's block alone when another run loses the claim", func() {
		owner, err := fixtures.StartFakeApp(tmpDir, "dw-session-owner")
		Expect(err).NotTo(HaveOccurred())
		defer owner.Kill()

		Expect(store.Block([]string{"a.com"})).To(Succeed())
		Expect(registry.Register(domain.RegistryEntry{
			PID:       owner.PID(),
			SessionID: "a",
			Websites:  []string{"a.com"},
		})).To(Succeed())

		runner := newRunner(session, guard, store, pm, registry)
		err = runner.Run(context.Background(), usecase.StartRequest{Websites: []string{"b.com"}, DurationMinutes: 5})
		Expect(err).To(MatchError(domain.ErrSessionActive))

		Expect(store.ListBlocked()).To(Equal([]string{"a.com"}))
		entry, err := registry.Get()
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.PID).To(Equal(owner.PID()))
		Expect(daemon.EnsureIdle(registry)).To(MatchError(domain.ErrSessionActive))
	})

	It("recovers a block left by a dead session process", func() {
		Expect(store.Block([]string{"x.com"})).To(Succeed())
		Expect(registry.Register(domain.RegistryEntry{
			PID:       999999,
			SessionID: "dead",
			Websites:  []string{"x.com"},
		})).To(Succeed())

		recovered, err := daemon.RecoverStale(store, registry, history, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(recovered).To(BeTrue())
		Expect(hosts.Content()).To(Equal("127.0.0.1 localhost\n"))

		records, err := history.List(10)
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].ID).To(Equal("dead"))
		Expect(records[0].Reason).To(Equal(domain.ReasonAborted))
	})
})

func newRunner(
	session *usecase.SessionController,
	guard *usecase.ProcessGuard,
	store *infra.HostsBlockStore,
	pm domain.ProcessManager,
	registry domain.SessionRegistry,
) *daemon.Runner {
	engine := usecase.NewEngine(store, guard, session, pm, nil, zap.NewNop())
	return daemon.NewRunner(daemon.RunnerConfig{HeartbeatInterval: 20 * time.Millisecond},
		engine, registry, pm, zap.NewNop())
}
