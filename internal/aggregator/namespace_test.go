package aggregator_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/mcp-gateway/internal/aggregator"
	"github.com/angeloszaimis/mcp-gateway/internal/registry"
)

var _ = Describe("Namespacer", func() {
	var ns *aggregator.Namespacer

	BeforeEach(func() {
		ns = aggregator.NewNamespacer(map[string]string{
			"journey-service-mcp": "journey",
			"mobility-mcp":        "",
		}, "-mcp")
	})

	DescribeTable("Namespace",
		func(id, expected string) {
			Expect(ns.Namespace(id)).To(Equal(expected))
		},
		Entry("alias", "journey-service-mcp", "journey"),
		Entry("alias matched without case", "Journey-Service-MCP", "journey"),
		Entry("suffix stripped", "weather-mcp", "weather"),
		Entry("empty alias ignored", "mobility-mcp", "mobility"),
		Entry("no suffix", "weather", "weather"),
		Entry("suffix only", "-mcp", "-mcp"),
	)

	It("should qualify local names", func() {
		Expect(ns.Qualify("journey-service-mcp", "findTrips")).To(Equal("journey.findTrips"))
	})

	Describe("BackendID", func() {
		servers := []registry.Registration{
			{ID: "journey-service-mcp"},
			{ID: "weather-mcp"},
			{ID: "weather"},
		}

		DescribeTable("maps namespaces back to ids",
			func(namespace, expected string) {
				Expect(ns.BackendID(namespace, servers)).To(Equal(expected))
			},
			Entry("alias", "journey", "journey-service-mcp"),
			Entry("exact id wins over derived namespace", "weather", "weather"),
			Entry("raw id", "weather-mcp", "weather-mcp"),
			Entry("unknown passes through", "maps", "maps"),
		)

		It("should match a derived namespace", func() {
			Expect(ns.BackendID("weather", servers[:2])).To(Equal("weather-mcp"))
		})

		DescribeTable("Candidates",
			func(namespace string, expected []string) {
				Expect(ns.Candidates(namespace, servers)).To(Equal(expected))
			},
			Entry("exact id before derived namespace", "weather", []string{"weather", "weather-mcp"}),
			Entry("alias", "journey", []string{"journey-service-mcp"}),
			Entry("raw id", "weather-mcp", []string{"weather-mcp"}),
			Entry("unknown passes through", "maps", []string{"maps"}),
		)
	})

	DescribeTable("SplitName",
		func(name, namespace, local string, ok bool) {
			gotNS, gotLocal, gotOK := aggregator.SplitName(name)
			Expect(gotOK).To(Equal(ok))
			Expect(gotNS).To(Equal(namespace))
			Expect(gotLocal).To(Equal(local))
		},
		Entry("two segments", "journey.findTrips", "journey", "findTrips", true),
		Entry("no separator", "findTrips", "", "", false),
		Entry("empty namespace", ".findTrips", "", "", false),
		Entry("empty local", "journey.", "", "", false),
	)
})
