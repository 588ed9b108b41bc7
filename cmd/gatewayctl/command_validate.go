package main

import (
	"fmt"
)

func runValidate() error {
	fmt.Println("□ Validating desired state...")
	desired, err := loadDesired()
	if err != nil {
		return err
	}

	fmt.Printf("✓ %s is valid: %s %s -> %s://%s:%d%s\n",
		desiredFile,
		desired.Route.Verb, desired.Route.Path,
		desired.Upstream.Scheme, desired.Upstream.Host, desired.Upstream.Port, desired.Upstream.BasePath)
	return nil
}
