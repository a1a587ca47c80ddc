//go:build integration

package integration

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/deepwork/internal/infra"
	"github.com/eliteGoblin/focusd/deepwork/test/fixtures"
)

var _ = Describe("Hosts block store", func() {
	var (
		tmpDir string
		hosts  *fixtures.FakeHostsFile
		store  *infra.HostsBlockStore
	)

	newStore := func(content string) {
		var err error
		hosts, err = fixtures.NewFakeHostsFile(tmpDir, content, 0644)
		Expect(err).NotTo(HaveOccurred())
		store = infra.NewHostsBlockStore(infra.HostsConfig{Path: hosts.Path}, infra.NewFileSystemManager(), zap.NewNop())
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "deepwork-integration-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	DescribeTable("restores the original file after block and unblock",
		func(original string) {
			newStore(original)

			Expect(store.Block([]string{"youtube.com", "reddit.com"})).To(Succeed())
			Expect(store.ListBlocked()).To(Equal([]string{"youtube.com", "reddit.com"}))

			Expect(store.Unblock()).To(Succeed())
			Expect(hosts.Content()).To(Equal(original))
		},
		Entry("unix hosts", fixtures.LinuxHosts),
		Entry("windows hosts", fixtures.WindowsHosts),
		Entry("localhost only", "127.0.0.1 localhost\n"),
		Entry("empty file", ""),
	)

	Context("with a CRLF hosts file", func() {
		It("writes the block with CRLF line endings", func() {
			newStore(fixtures.WindowsHosts)

			Expect(store.Block([]string{"x.com"})).To(Succeed())
			Expect(hosts.Content()).To(HaveSuffix(
				"# deepwork block start\r\n127.0.0.1 x.com\r\n# deepwork block end\r\n"))
		})
	})

	Context("when blocking twice", func() {
		It("keeps a single block with the latest domains", func() {
			newStore(fixtures.LinuxHosts)

			Expect(store.Block([]string{"a.com"})).To(Succeed())
			Expect(store.Block([]string{"b.com"})).To(Succeed())
			Expect(store.ListBlocked()).To(Equal([]string{"b.com"}))

			Expect(store.Unblock()).To(Succeed())
			Expect(hosts.Content()).To(Equal(fixtures.LinuxHosts))
		})
	})

	Context("when unblocking without a block", func() {
		It("leaves the file alone", func() {
			newStore(fixtures.LinuxHosts)

			Expect(store.Unblock()).To(Succeed())
			Expect(store.Unblock()).To(Succeed())
			Expect(hosts.Content()).To(Equal(fixtures.LinuxHosts))
		})
	})

	Context("with a backup taken before blocking", func() {
		It("puts the original file back after it was damaged", func() {
			newStore(fixtures.LinuxHosts)
			backup := infra.NewHostsBackup(filepath.Join(tmpDir, "data"), infra.NewFileSystemManager(), zap.NewNop())

			_, err := backup.Snapshot(hosts.Path)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Block([]string{"x.com"})).To(Succeed())
			Expect(os.WriteFile(hosts.Path, []byte("# deepwork block start\n127.0.0.1 x.com\n"), 0644)).To(Succeed())

			_, err = backup.Restore()
			Expect(err).NotTo(HaveOccurred())
			Expect(hosts.Content()).To(Equal(fixtures.LinuxHosts))
		})
	})

	Context("with restrictive permissions", func() {
		It("keeps the file mode", func() {
			var err error
			hosts, err = fixtures.NewFakeHostsFile(tmpDir, fixtures.LinuxHosts, 0600)
			Expect(err).NotTo(HaveOccurred())
			store = infra.NewHostsBlockStore(infra.HostsConfig{Path: hosts.Path}, infra.NewFileSystemManager(), zap.NewNop())

			Expect(store.Block([]string{"x.com"})).To(Succeed())
			Expect(hosts.Mode()).To(Equal(os.FileMode(0600)))
		})
	})
})
