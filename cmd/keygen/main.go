// Package main generates the custody RSA key pair used to seal wallet
// private keys. Run once during deployment; the public half goes to the
// API server, the private half stays with the worker process.
package main

import (
	"flag"

	"veyra/internal/services/keycustody"

	"github.com/sirupsen/logrus"
)

func main() {
	publicPath := flag.String("public", "keys/custody.pub.pem", "output path for the public key")
	privatePath := flag.String("private", "keys/custody.pem", "output path for the private key")
	flag.Parse()

	key, err := keycustody.GenerateKeyPair()
	if err != nil {
		logrus.WithError(err).Fatal("key generation failed")
	}
	if err := keycustody.WriteKeyPair(key, *publicPath, *privatePath); err != nil {
		logrus.WithError(err).Fatal("failed to write key pair")
	}

	logrus.WithFields(logrus.Fields{
		"public":  *publicPath,
		"private": *privatePath,
	}).Info("custody key pair written")
}
