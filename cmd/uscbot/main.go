package main

import (
	"context"

	"uscbot-backend/cmd/uscbot/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
