package main

import (
	"fmt"
	"log"

	"github.com/tjfontaine/workflow-copilot/internal/vault"
)

func main() {
	key, err := vault.GenerateAPIKey()
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}

	fmt.Printf("API Key:        %s\n", key.Plaintext)
	fmt.Printf("Display Prefix: %s\n", key.DisplayPrefix)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("  api_keys:\n")
	fmt.Printf("    - digest: \"%s\"\n", key.Digest)
	fmt.Printf("      owner_id: \"<owner>\"\n")
	fmt.Printf("      name: \"generated key\"\n")
}
