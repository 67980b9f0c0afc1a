package main

import (
	"github.com/humanbelnik/feastfriends/core/internal/app"
	"github.com/humanbelnik/feastfriends/core/internal/config"
)

func main() {
	app.Go(config.Load())
}
