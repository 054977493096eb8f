package main

import (
	"fmt"
	"log"

	"github.com/EgehanKilicarslan/authgate/internal/token"
)

// Prints a fresh JWT_SECRET value
func main() {
	secret, err := token.GenerateSigningSecret()
	if err != nil {
		log.Fatalf("failed to generate secret: %v", err)
	}
	fmt.Println(secret)
}
