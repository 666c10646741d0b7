package validator_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
	"github.com/angeloszaimis/mcp-gateway/internal/validator"
)

func decode(s string) map[string]any {
	var m map[string]any
	Expect(json.Unmarshal([]byte(s), &m)).To(Succeed())
	return m
}

var _ = Describe("Validator", func() {
	Describe("ValidateToolCall", func() {
		It("should accept a namespaced call with plain arguments", func() {
			res := validator.ValidateToolCall(map[string]any{
				"name":      "journey-service-mcp.findTrips",
				"arguments": map[string]any{"from": "A"},
			})
			Expect(res.Valid).To(BeTrue())
			Expect(res.Errors).To(BeEmpty())
			Expect(res.Err()).NotTo(HaveOccurred())
		})

		It("should accept a call without arguments", func() {
			res := validator.ValidateToolCall(map[string]any{"name": "weather.forecast"})
			Expect(res.Valid).To(BeTrue())
		})

		It("should accept the legacy double-underscore form", func() {
			res := validator.ValidateToolCall(map[string]any{"name": "weather__forecast"})
			Expect(res.Valid).To(BeTrue())
		})

		DescribeTable("reports distinct name problems",
			func(params map[string]any, expected string) {
				res := validator.ValidateToolCall(params)
				Expect(res.Valid).To(BeFalse())
				Expect(res.Errors).To(ContainElement(ContainSubstring(expected)))
			},
			Entry("missing name", map[string]any{}, "name is required"),
			Entry("null name", map[string]any{"name": nil}, "name is required"),
			Entry("non-string name", map[string]any{"name": 42.0}, "name must be a string"),
			Entry("no namespace", map[string]any{"name": "forecast"}, "must match namespace.name"),
			Entry("three segments", map[string]any{"name": "a.b.c"}, "must match namespace.name"),
			Entry("hyphen in local name", map[string]any{"name": "weather.get-forecast"}, "must match namespace.name"),
			Entry("empty name", map[string]any{"name": ""}, "must match namespace.name"),
		)

		DescribeTable("rejects forbidden keys at any depth",
			func(args string) {
				res := validator.ValidateToolCall(map[string]any{
					"name":      "journey-service-mcp.findTrips",
					"arguments": decode(args),
				})
				Expect(res.Valid).To(BeFalse())
				Expect(res.Errors).To(ContainElement(ContainSubstring("forbidden keys")))
			},
			Entry("top level", `{"__proto__": {"admin": true}}`),
			Entry("nested object", `{"filter": {"deep": {"constructor": 1}}}`),
			Entry("inside array", `{"legs": [{"from": "A"}, {"prototype": {}}]}`),
			Entry("array of arrays", `{"m": [[{"__proto__": 1}]]}`),
		)

		It("should not flag forbidden words used as values", func() {
			res := validator.ValidateToolCall(map[string]any{
				"name":      "weather.forecast",
				"arguments": map[string]any{"note": "__proto__", "list": []any{"constructor"}},
			})
			Expect(res.Valid).To(BeTrue())
		})

		It("should reject non-object arguments", func() {
			res := validator.ValidateToolCall(map[string]any{
				"name":      "weather.forecast",
				"arguments": []any{"a"},
			})
			Expect(res.Errors).To(ConsistOf("arguments must be an object"))
		})

		It("should accumulate every problem", func() {
			res := validator.ValidateToolCall(map[string]any{
				"name":      7.0,
				"arguments": map[string]any{"__proto__": 1},
			})
			Expect(res.Errors).To(HaveLen(2))
		})

		It("should convert to a ValidationError", func() {
			res := validator.ValidateToolCall(map[string]any{})
			var vErr *apperr.ValidationError
			Expect(errors.As(res.Err(), &vErr)).To(BeTrue())
			Expect(vErr.Problems).To(Equal(res.Errors))
			Expect(vErr.Error()).To(ContainSubstring("name is required"))
		})
	})

	Describe("ValidatePromptGet", func() {
		It("should apply the same rules as tool calls", func() {
			Expect(validator.ValidatePromptGet(map[string]any{"name": "journey.plan"}).Valid).To(BeTrue())
			Expect(validator.ValidatePromptGet(map[string]any{"name": "plan"}).Valid).To(BeFalse())
		})
	})

	Describe("ValidateResourceRead", func() {
		It("should accept an allowed scheme", func() {
			res := validator.ValidateResourceRead(map[string]any{"uri": "journey://stations/zurich"})
			Expect(res.Valid).To(BeTrue())
		})

		DescribeTable("rejects bad URIs",
			func(params map[string]any, expected string) {
				res := validator.ValidateResourceRead(params)
				Expect(res.Valid).To(BeFalse())
				Expect(res.Errors).To(ContainElement(ContainSubstring(expected)))
			},
			Entry("file", map[string]any{"uri": "file:///etc/passwd"}, "not allowed"),
			Entry("javascript", map[string]any{"uri": "javascript://alert(1)"}, "not allowed"),
			Entry("upper-case data", map[string]any{"uri": "DATA://text"}, "not allowed"),
			Entry("vbscript", map[string]any{"uri": "vbscript://x"}, "not allowed"),
			Entry("about", map[string]any{"uri": "about://blank"}, "not allowed"),
			Entry("missing", map[string]any{}, "uri is required"),
			Entry("not a string", map[string]any{"uri": true}, "uri must be a string"),
			Entry("no scheme", map[string]any{"uri": "stations/zurich"}, "must include a scheme"),
			Entry("bad scheme", map[string]any{"uri": "we ird://x"}, "is invalid"),
			Entry("empty scheme", map[string]any{"uri": "://x"}, "is invalid"),
		)
	})

	Describe("NormalizeName", func() {
		DescribeTable("normalizes to the dotted form",
			func(in, out string) {
				Expect(validator.NormalizeName(in)).To(Equal(out))
			},
			Entry("legacy", "weather__forecast", "weather.forecast"),
			Entry("only first delimiter", "weather__get__forecast", "weather.get__forecast"),
			Entry("already dotted", "weather.get__forecast", "weather.get__forecast"),
			Entry("plain", "forecast", "forecast"),
		)
	})

	Describe("Parse", func() {
		It("should build a sanitized ToolCall", func() {
			req, res := validator.Parse(validator.MethodToolsCall, json.RawMessage(`{"name":"weather__forecast","arguments":{"city":"Bern","opts":{"days":3}}}`))
			Expect(res.Valid).To(BeTrue())
			Expect(req).To(Equal(validator.ToolCall{
				Name:      "weather.forecast",
				Arguments: map[string]any{"city": "Bern", "opts": map[string]any{"days": json.Number("3")}},
			}))
		})

		It("should pass large integers through unchanged", func() {
			req, res := validator.Parse(validator.MethodToolsCall, json.RawMessage(`{"name":"a.b","arguments":{"id":9007199254740993,"ratio":0.1}}`))
			Expect(res.Valid).To(BeTrue())

			out, err := json.Marshal(req.(validator.ToolCall).Arguments)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(MatchJSON(`{"id":9007199254740993,"ratio":0.1}`))
			Expect(string(out)).To(ContainSubstring("9007199254740993"))
		})

		It("should pass large integers in prompt arguments through unchanged", func() {
			req, res := validator.Parse(validator.MethodPromptsGet, json.RawMessage(`{"name":"a.b","arguments":{"id":9007199254740993}}`))
			Expect(res.Valid).To(BeTrue())

			out, err := json.Marshal(req.(validator.PromptGet).Arguments)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(Equal(`{"id":9007199254740993}`))
		})

		It("should build a ResourceRead", func() {
			req, res := validator.Parse(validator.MethodResourcesRead, json.RawMessage(`{"uri":"journey://stations"}`))
			Expect(res.Valid).To(BeTrue())
			Expect(req).To(Equal(validator.ResourceRead{URI: "journey://stations"}))
		})

		It("should build a PromptGet", func() {
			req, _ := validator.Parse(validator.MethodPromptsGet, json.RawMessage(`{"name":"journey.plan"}`))
			Expect(req).To(Equal(validator.PromptGet{Name: "journey.plan"}))
		})

		It("should accept missing params for list methods", func() {
			req, res := validator.Parse(validator.MethodToolsList, nil)
			Expect(res.Valid).To(BeTrue())
			Expect(req.Method()).To(Equal(validator.MethodToolsList))
		})

		It("should reject non-object params", func() {
			req, res := validator.Parse(validator.MethodToolsCall, json.RawMessage(`[1,2]`))
			Expect(req).To(BeNil())
			Expect(res.Errors).To(ConsistOf("params must be a JSON object"))
		})

		It("should reject unsupported methods", func() {
			Expect(validator.Supports("sampling/createMessage")).To(BeFalse())
			req, res := validator.Parse("sampling/createMessage", nil)
			Expect(req).To(BeNil())
			Expect(res.Valid).To(BeFalse())
		})

		It("should not dispatch a request with forbidden keys", func() {
			req, res := validator.Parse(validator.MethodToolsCall, json.RawMessage(`{"name":"a.b","arguments":{"x":{"__proto__":{}}}}`))
			Expect(req).To(BeNil())
			Expect(res.Valid).To(BeFalse())
		})
	})
})
