package main

import (
	"log"

	"qline/cmd"
)

// @Title						Qline — управление очередями
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
