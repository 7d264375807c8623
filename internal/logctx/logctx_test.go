// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

package logctx

import (
	"context"

	"github.com/coredhcp/coredhcp/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Context logger", func() {
	fallback := logger.GetLogger("fallback")

	It("should return the fallback for a bare context", func() {
		Expect(FromContext(context.Background(), fallback)).To(BeIdenticalTo(fallback))
	})

	It("should return the logger stored in the context", func() {
		task := logger.GetLogger("task")
		ctx := NewContext(context.Background(), task)
		Expect(FromContext(ctx, fallback)).To(BeIdenticalTo(task))
	})
})
