// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ExecRunner", func() {
	var (
		ctx    context.Context
		runner *ExecRunner
	)

	BeforeEach(func() {
		ctx = context.Background()
		runner = NewExecRunner()
	})

	It("should return the output of a successful command", func() {
		out, err := runner.Run(ctx, Sh("echo hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("hello\n"))
	})

	It("should return a command error with the exit status", func() {
		_, err := runner.Run(ctx, Sh("echo broken >&2; exit 3"))
		Expect(err).To(HaveOccurred())
		var cmdErr *CommandError
		Expect(err).To(BeAssignableToTypeOf(cmdErr))
		cmdErr = err.(*CommandError)
		Expect(cmdErr.Code).To(Equal(3))
		Expect(cmdErr.Stderr).To(Equal("broken"))
	})

	It("should succeed on failure when negative", func() {
		cmd := Cmd("false")
		cmd.Negative = true
		_, err := runner.Run(ctx, cmd)
		Expect(err).NotTo(HaveOccurred())

		cmd = Cmd("true")
		cmd.Negative = true
		_, err = runner.Run(ctx, cmd)
		Expect(err).To(HaveOccurred())
	})

	It("should ignore errors when asked to", func() {
		cmd := Sh("echo partial; exit 1")
		cmd.IgnoreErrors = true
		out, err := runner.Run(ctx, cmd)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("partial\n"))
	})

	It("should retry until the command succeeds", func() {
		marker := filepath.Join(GinkgoT().TempDir(), "marker")
		cmd := Sh("if [ -e " + marker + " ]; then exit 0; fi; touch " + marker + "; exit 1")
		cmd.Retry = 3
		_, err := runner.Run(ctx, cmd)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should treat a missing binary as a failed command", func() {
		cmd := Cmd("/nonexistent/binary")
		cmd.Negative = true
		_, err := runner.Run(ctx, cmd)
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Batch", func() {
	It("should wait for all processes and aggregate their failures", func() {
		fake := &FakeRunner{Handle: func(cmd Command) (string, int) {
			if cmd.Args[0] == "false" {
				return "", 1
			}
			return "", 0
		}}
		batch, err := NewBatch(context.Background(), fake, time.Minute)
		Expect(err).NotTo(HaveOccurred())

		path, err := batch.WriteFile("flows-", []string{"a", "b"})
		Expect(err).NotTo(HaveOccurred())
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("a\nb\n"))

		Expect(batch.Start(Cmd("true"))).To(Succeed())
		Expect(batch.Start(Cmd("false"))).To(Succeed())
		Expect(batch.Start(Cmd("false", "again"))).To(Succeed())

		err = batch.Wait()
		Expect(err).To(MatchError(ContainSubstring("one of the batch commands failed")))
		Expect(err.Error()).To(ContainSubstring("false again"))
		Expect(fake.StartedLines()).To(HaveLen(3))
		Expect(batch.Dir()).NotTo(BeADirectory())
	})

	It("should run real background processes", func() {
		batch, err := NewBatch(context.Background(), NewExecRunner(), time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(batch.Start(Cmd("true"))).To(Succeed())
		Expect(batch.Wait()).To(Succeed())
	})
})

var _ = Describe("DryRunner", func() {
	It("should print changes and fail probes", func() {
		var buf bytes.Buffer
		runner := NewDryRunner(&buf)
		ctx := context.Background()

		_, err := runner.Run(ctx, Cmd("ovs-vsctl", "--may-exist", "add-br", "br-VM0100-0"))
		Expect(err).NotTo(HaveOccurred())

		exists := Cmd("ip", "link", "show", "eth0")
		exists.Probe = true
		_, err = runner.Run(ctx, exists)
		Expect(err).To(HaveOccurred())

		notExists := exists
		notExists.Negative = true
		_, err = runner.Run(ctx, notExists)
		Expect(err).NotTo(HaveOccurred())

		Expect(buf.String()).To(Equal("ovs-vsctl --may-exist add-br br-VM0100-0\n"))
	})
})
