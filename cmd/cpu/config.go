package main

type CPUConfig struct {
	IPMemory         string `json:"IP_MEMORIA"`
	PortMemory       int    `json:"PUERTO_MEMORIA"`
	LogLevel         string `json:"LOG_LEVEL"`
	StepMode         bool   `json:"MODO_PASO"`           // Esperar una tecla entre instrucciones
	InstructionDelay int    `json:"RETARDO_INSTRUCCION"` // ms entre instrucciones
}

var config *CPUConfig
