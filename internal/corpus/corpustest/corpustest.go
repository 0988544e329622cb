// Package corpustest provides record fixtures for tests.
package corpustest

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/incident-search/internal/corpus"
)

// Seed returns the two reference scenarios used across the test suites.
func Seed() []corpus.Record {
	return []corpus.Record{
		{
			ID:          1,
			Category:    "Networking",
			Environment: "K8s v1.22, GKE",
			Title:       "DNS Resolution Failure due to CoreDNS Pod Crash",
			Summary:     "Service discovery failed cluster-wide after CoreDNS pods entered CrashLoopBackOff.",
			WhatHappened: "A ConfigMap change introduced a forwarding loop. CoreDNS detected the loop " +
				"and exited, and every pod lost name resolution.",
			DiagnosisSteps: []string{
				"Checked CoreDNS pod status with kubectl get pods -n kube-system.",
				"Read CoreDNS logs and found the loop plugin error.",
			},
			RootCause:      "Upstream resolver in the Corefile pointed back at the cluster DNS service.",
			Fix:            "Reverted the ConfigMap and restarted the CoreDNS deployment.",
			LessonsLearned: "DNS configuration changes need a canary.",
			HowToAvoid:     []string{"Validate Corefile changes in staging.", "Alert on CoreDNS restarts."},
		},
		{
			ID:          2,
			Category:    "Storage",
			Environment: "K8s v1.22, EKS",
			Title:       "PVC Stuck in Terminating State",
			Summary:     "A persistent volume claim never finished deleting, blocking namespace cleanup.",
			WhatHappened: "The namespace deletion hung because a PVC kept its protection finalizer " +
				"while a pod still mounted the volume.",
			DiagnosisSteps: []string{
				"Described the PVC and saw the kubernetes.io/pvc-protection finalizer.",
				"Listed pods that still referenced the claim.",
			},
			RootCause:      "An orphaned pod kept the volume mounted.",
			Fix:            "Deleted the orphaned pod so the finalizer could complete.",
			LessonsLearned: "Finalizers wait for every consumer of a volume.",
			HowToAvoid:     []string{"Drain workloads before deleting namespaces."},
		},
	}
}

var (
	categories   = []string{"Networking", "Storage", "Compute", "Database", "Security"}
	environments = []string{"K8s v1.22, GKE", "K8s v1.22, EKS", "AWS Lambda", "On-prem VMware"}
	subjects     = []string{"DNS", "disk", "memory", "certificate", "connection pool", "replication", "ingress", "kafka consumer"}
	symptoms     = []string{"timeout", "leak", "expired", "exhausted", "lag", "crash", "throttling", "deadlock"}
)

// Generate returns n synthetic records with ids 1..n. The output depends only
// on n.
func Generate(n int) []corpus.Record {
	records := make([]corpus.Record, n)
	for i := range records {
		subject := subjects[i%len(subjects)]
		symptom := symptoms[(i/len(subjects))%len(symptoms)]
		records[i] = corpus.Record{
			ID:             i + 1,
			Category:       categories[i%len(categories)],
			Environment:    environments[(i/3)%len(environments)],
			Title:          fmt.Sprintf("%s %s in production cluster %d", subject, symptom, i%7),
			Summary:        fmt.Sprintf("Users saw errors caused by %s %s.", subject, symptom),
			WhatHappened:   fmt.Sprintf("During peak traffic the %s began to show %s across %d nodes.", subject, symptom, i%5+1),
			DiagnosisSteps: []string{"Checked dashboards.", fmt.Sprintf("Inspected %s metrics.", subject)},
			RootCause:      fmt.Sprintf("Misconfigured %s limits.", subject),
			Fix:            fmt.Sprintf("Raised %s limits and redeployed.", subject),
			LessonsLearned: "Capacity alerts must precede saturation.",
			HowToAvoid:     []string{"Load test before release."},
		}
	}
	return records
}

// MustLoad loads records into a Corpus or fails the test.
func MustLoad(tb testing.TB, records []corpus.Record) *corpus.Corpus {
	tb.Helper()
	c, err := corpus.Load(records)
	if err != nil {
		tb.Fatalf("loading corpus: %v", err)
	}
	return c
}
