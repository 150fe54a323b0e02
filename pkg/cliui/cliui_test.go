package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/cliui"
)

var _ = Describe("cliui", func() {
	It("formats sub-second and longer durations", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})

	It("marks errors", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
		Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
	})

	It("keeps the status word in badges", func() {
		for _, s := range []string{"ok", "circuit_open", "error", "disabled"} {
			Expect(cliui.Badge(s)).To(ContainSubstring(s))
		}
	})

	It("aligns table columns", func() {
		var buf bytes.Buffer
		cliui.Table(&buf, [][]string{
			{"tier", "removed"},
			{"stm", "12"},
			{"mtm", "3"},
		})

		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		Expect(lines).To(HaveLen(3))
		Expect(strings.Fields(lines[0])).To(Equal([]string{"tier", "removed"}))
		Expect(strings.Fields(lines[1])).To(Equal([]string{"stm", "12"}))
		Expect(strings.Fields(lines[2])).To(Equal([]string{"mtm", "3"}))

		col := strings.Index(lines[0], "removed")
		Expect(strings.Index(lines[1], "12")).To(Equal(col))
		Expect(strings.Index(lines[2], "3")).To(Equal(col))
		Expect(lines[1]).To(HavePrefix("  stm"))
	})

	It("pads short rows and writes nothing without rows", func() {
		var buf bytes.Buffer
		cliui.Table(&buf, nil)
		Expect(buf.String()).To(BeEmpty())

		cliui.Table(&buf, [][]string{{"pair", "promoted", "failed"}, {"stm -> mtm", "2"}})
		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		Expect(lines).To(HaveLen(2))
		Expect(strings.Index(lines[1], "2")).To(Equal(strings.Index(lines[0], "promoted")))
	})

	It("runs the step function and reports its error", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "checking", func() error { return errors.New("nope") })
		Expect(err).To(MatchError("nope"))
		Expect(buf.String()).To(ContainSubstring("checking"))
	})

	It("renders markdown for the terminal", func() {
		out, err := cliui.RenderMarkdown("# Quality report\n\nNo alerts.\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Quality report"))
		Expect(out).To(ContainSubstring("No alerts."))
	})
})
