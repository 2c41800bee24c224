//go:build e2e

/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const dataset = "random-xxs-8-euclidean"

const definitions = `image: %s
algorithms:
  - algorithm: bruteforce
    module: bruteforce
    constructor: BruteForce
    arguments: ["euclidean"]
  - algorithm: broken
    module: bruteforce
    constructor: DoesNotExist
    arguments: []
`

var _ = Describe("sandbox", Ordered, func() {
	var dataDir, resultsDir, defsPath string

	BeforeAll(func() {
		tmp := GinkgoT().TempDir()
		dataDir = filepath.Join(tmp, "data")
		resultsDir = filepath.Join(tmp, "results")
		defsPath = filepath.Join(tmp, "algos.yaml")
		Expect(os.MkdirAll(dataDir, 0o755)).To(Succeed())
		Expect(os.MkdirAll(resultsDir, 0o755)).To(Succeed())
		// the image runs as a non-root user
		Expect(os.Chmod(resultsDir, 0o777)).To(Succeed())
		Expect(os.WriteFile(defsPath, []byte(fmt.Sprintf(definitions, image)), 0o644)).To(Succeed())

		By("materializing the dataset")
		_, err := run(exec.Command(binary, "datasets", dataset, "--data-dir", dataDir))
		Expect(err).NotTo(HaveOccurred())
	})

	annbench := func(args ...string) *exec.Cmd {
		base := []string{"--data-dir", dataDir, "--results-dir", resultsDir}
		return exec.Command(binary, append(args, base...)...)
	}

	It("stores results for a working definition", func() {
		out, err := run(annbench("sandbox", "-f", defsPath, "--dataset", dataset,
			"--algorithm", "bruteforce", "--runs", "1", "-k", "5", "--memory", "512Mi", "--timeout", "5m"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(ContainSubstring("Run 1/1"))

		By("listing the stored descriptor")
		out, err = run(annbench("results", "--dataset", dataset, "-o", "json"))
		Expect(err).NotTo(HaveOccurred())
		var rows []struct {
			Attrs map[string]any `json:"attrs"`
		}
		Expect(json.Unmarshal(out, &rows)).To(Succeed())
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].Attrs).To(HaveKeyWithValue("name", "BruteForce(metric=euclidean)"))
		Expect(rows[0].Attrs).To(HaveKeyWithValue("count", BeNumerically("==", 5)))
	})

	It("skips definitions that already have results", func() {
		out, err := run(annbench("sandbox", "-f", defsPath, "--dataset", dataset,
			"--algorithm", "bruteforce", "--runs", "1", "-k", "5", "--memory", "512Mi"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(ContainSubstring("Results exist, skipping"))
	})

	It("reports a failing definition and leaves no container behind", func() {
		out, err := run(annbench("sandbox", "-f", defsPath, "--dataset", dataset,
			"--algorithm", "broken", "--runs", "1", "-k", "5", "--memory", "512Mi"))
		Expect(err).To(HaveOccurred())
		Expect(string(out)).To(ContainSubstring("Child process raised exception"))

		By("checking that no sandbox container is left")
		ps, err := run(exec.Command("docker", "ps", "-a", "-q", "--filter", "label=annbench.hortator.ai/sandbox"))
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.TrimSpace(string(ps))).To(BeEmpty())
	})
})
