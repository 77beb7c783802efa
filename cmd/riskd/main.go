// Command riskd serves multi-factor risk scoring and anomaly detection over
// gRPC and HTTP, and scores Kafka event batches as they arrive.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "riskd:", err)
		os.Exit(1)
	}
}
