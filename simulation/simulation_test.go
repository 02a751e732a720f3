package simulation

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/envelope/config"
	"github.com/sarchlab/envelope/datarecording"
	"github.com/sarchlab/envelope/device"
	"github.com/sarchlab/envelope/envelope"
	"github.com/sarchlab/envelope/errs"
	"github.com/sarchlab/envelope/field"
)

var _ = Describe("Simulation", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.Default()
		cfg.Budget.OverrideFree = 1 << 30
		cfg.Budget.OverrideTotal = 1 << 31
		cfg.Tiling.TileSize = 4
		cfg.Tiling.Overlap = 1
	})

	It("should run on the CPU without a GPU", func() {
		s, err := MakeBuilder().WithConfig(cfg).WithRunID("run").Build()
		Expect(err).NotTo(HaveOccurred())
		defer s.Terminate()

		Expect(s.ID()).To(Equal("run"))
		Expect(s.Backend().Kind()).To(Equal(device.KindCPU))
		Expect(s.GetDataRecorder()).To(BeNil())
		Expect(s.GetMonitor()).To(BeNil())
		Expect(s.Loop().RunID()).To(Equal("run"))
	})

	It("should prefer the simulated GPU", func() {
		cfg.Device.GPUMemory = 1 << 30

		s, err := MakeBuilder().WithConfig(cfg).Build()
		Expect(err).NotTo(HaveOccurred())
		defer s.Terminate()

		Expect(s.Backend().Kind()).To(Equal(device.KindGPU))
		Expect(s.Backend().Name()).To(Equal(SimulatedGPUName))
	})

	It("should not fall back when a GPU is required", func() {
		cfg.Device.Policy = device.PolicyGPUOnly.String()

		_, err := MakeBuilder().WithConfig(cfg).Build()

		Expect(errs.IsResource(err)).To(BeTrue())
	})

	It("should reject an invalid configuration", func() {
		cfg.Loop.Tolerance = -1

		_, err := MakeBuilder().WithConfig(cfg).Build()

		Expect(errs.IsConfiguration(err)).To(BeTrue())
	})

	It("should record a solve", func() {
		path := filepath.Join(GinkgoT().TempDir(), "run")
		cfg.Recording.Enabled = true
		cfg.Recording.Path = path
		cfg.Recording.TraceTasks = true

		s, err := MakeBuilder().WithConfig(cfg).Build()
		Expect(err).NotTo(HaveOccurred())

		domain := field.MustShape(8, 4, 4, 1, 1, 1, 2)
		res, err := s.Loop().SolveEnvelope(
			context.Background(), field.NewDense(domain), 0, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())

		Expect(s.Stats().Iterations).To(Equal(uint64(1)))
		Expect(s.Terminate()).To(Succeed())
		Expect(s.Terminate()).To(Succeed())

		reader, err := datarecording.NewReader(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		iterations, err := envelope.ReadIterations(context.Background(), reader, s.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(iterations).To(HaveLen(1))
		Expect(iterations[0].RunID).To(Equal(s.ID()))

		solves, err := envelope.ReadTileSolves(context.Background(), reader, s.ID(), 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(solves).To(HaveLen(iterations[0].NumTiles))

		tasks, err := datarecording.ReadTasks(
			context.Background(), reader, envelope.IterationKind)
		Expect(err).NotTo(HaveOccurred())
		Expect(tasks).To(HaveLen(1))
	})

	It("should serve the loop status", func() {
		cfg.Monitoring.Enabled = true

		s, err := MakeBuilder().WithConfig(cfg).Build()
		Expect(err).NotTo(HaveOccurred())
		defer s.Terminate()

		Expect(s.MonitorURL()).To(HavePrefix("http://localhost:"))

		rsp, err := http.Get(s.MonitorURL() + "/api/status")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		var names []string
		Expect(json.NewDecoder(rsp.Body).Decode(&names)).To(Succeed())
		Expect(names).To(Equal([]string{"loop", "simulation"}))
	})
})
