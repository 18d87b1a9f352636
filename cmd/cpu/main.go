package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Error: Uso: ./cpu [archivo_traza] [archivo_config_opcional]")
		os.Exit(1)
	}
	rutaTraza := os.Args[1]

	// Determinar archivo de configuración
	rutaConfig := filepath.Join("configs", "cpu-config.json")
	if len(os.Args) >= 3 {
		rutaConfig = os.Args[2]
	}
	if _, err := os.Stat(rutaConfig); os.IsNotExist(err) {
		fmt.Printf("Error: El archivo de configuración '%s' no existe\n", rutaConfig)
		os.Exit(1)
	}

	utils.InicializarLogger("INFO", "CPU")
	config = utils.CargarConfiguracion[CPUConfig](rutaConfig)
	utils.InicializarLogger(config.LogLevel, "CPU")
	utils.InfoLog.Info("Configuración cargada", "nivel_log", config.LogLevel, "config_path", rutaConfig)

	archivo, err := os.Open(rutaTraza)
	if err != nil {
		utils.ErrorLog.Error("No se pudo abrir la traza", "ruta", rutaTraza, "error", err)
		os.Exit(1)
	}
	instrucciones, err := parsearTraza(archivo)
	archivo.Close()
	if err != nil {
		utils.ErrorLog.Error("Traza inválida", "ruta", rutaTraza, "error", err)
		os.Exit(1)
	}
	utils.InfoLog.Info("Traza cargada", "ruta", rutaTraza, "instrucciones", len(instrucciones))

	memoriaClient := utils.NewHTTPClient(config.IPMemory, config.PortMemory, "CPU->Memoria")
	handshake := conectarConReintentos(memoriaClient, "Memoria", map[string]interface{}{
		"nombre": "CPU",
		"tipo":   "CPU",
	})
	utils.InfoLog.Info("Memoria lista", "tam_pagina", handshake["tam_pagina"], "entradas_tlb", handshake["entradas_tlb"], "habilitada", handshake["habilitada"])

	cpu := NuevaCPU(memoriaClient, config.InstructionDelay)
	if config.StepMode {
		paso, err := abrirPasoAPaso()
		if err != nil {
			utils.ErrorLog.Error("No se pudo activar el modo paso a paso", "error", err)
			os.Exit(1)
		}
		defer paso.Close()
		cpu.esperar = paso.Esperar
	}

	resultado, err := cpu.ejecutarTraza(instrucciones)
	if err != nil {
		utils.ErrorLog.Error("Traza interrumpida", "error", err)
	}

	utils.InfoLog.Info("Traza finalizada",
		"ejecutadas", resultado.Ejecutadas,
		"errores", resultado.Errores,
		"procesos_terminados", resultado.Terminados,
		"cortada", resultado.Cortada)
}
