package model

import (
	"github.com/gssiot/sitewatch/internal/model/entities"
	"github.com/gssiot/sitewatch/internal/model/messages"
)

// Aliases exposing the common types to the services.

type (
	SensorReading    = messages.SensorReading
	DoorReading      = messages.DoorReading
	AngleNode        = entities.AngleNode
	AngleCalibration = entities.AngleCalibration
	Gateway          = entities.Gateway
	Building         = entities.Building
	AlertThresholds  = entities.AlertThresholds
	AlertLog         = entities.AlertLog
	AlertLevel       = entities.AlertLevel
)

const (
	LevelNone   = entities.LevelNone
	LevelYellow = entities.LevelYellow
	LevelRed    = entities.LevelRed
)
