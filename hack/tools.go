// SPDX-FileCopyrightText: 2023 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: MIT

//go:build tools

package hack

import (
	// Use addlicense for adding license headers.
	_ "github.com/google/addlicense"
	// Use ginkgo to run the test suites.
	_ "github.com/onsi/ginkgo/v2/ginkgo"
)
