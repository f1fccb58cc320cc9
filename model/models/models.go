// Package models registriert alle eingebauten Backbones
package models

import (
	_ "github.com/7blacky7/transformer-vae/model/models/tiny"
)
