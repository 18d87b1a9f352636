package main

import (
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/vm"
)

// MemoryConfig representa la configuración específica del módulo Memoria
type MemoryConfig struct {
	IPMemory     string `json:"IP_MEMORIA"`
	PortMemory   int    `json:"PUERTO_MEMORIA"`
	LogLevel     string `json:"LOG_LEVEL"`
	MemorySize   int    `json:"TAM_MEMORIA"`    // RAM física en bytes
	KernelSize   int    `json:"MEMORIA_KERNEL"` // Bytes ocupados por la imagen estática del kernel
	SwapSize     int    `json:"TAM_SWAP"`       // Capacidad del swapfile en bytes
	SwapfilePath string `json:"SWAPFILE_PATH"`  // Vacío = SWAP en memoria
	SwapDelay    int    `json:"RETARDO_SWAP"`   // Retardo por transferencia a swap
	TLBEntries   int    `json:"ENTRADAS_TLB"`
	IPTIndex     string `json:"INDICE_IPT"` // "lineal" o "hash"
	DumpPath     string `json:"DUMP_PATH"`
	ImagesPath   string `json:"IMAGES_PATH"` // Directorio de los ejecutables ELF
}

var config *MemoryConfig

func (c *MemoryConfig) configVM() vm.Config {
	return vm.Config{
		EntradasTLB:  c.TLBEntries,
		Indice:       c.IPTIndex,
		TamanioSwap:  c.SwapSize,
		SwapfilePath: c.SwapfilePath,
		RetardoSwap:  c.SwapDelay,
	}
}
