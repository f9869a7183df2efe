package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	app := newApp(os.Stdout)
	if err := app.Run(context.Background(), os.Args); err != nil {
		logrus.WithError(err).Fatal("queuectl failed")
	}
}
