package direcciones

import "fmt"

// Constantes de la plataforma simulada (MIPS r3000: páginas de 4 KiB,
// segmento kseg0 mapeado directo sobre la memoria física)
const (
	TamanioPagina = 4096
	MarcoPagina   = ^uint32(TamanioPagina - 1) // máscara que deja solo el número de página

	KSeg0       = 0x80000000 // base del segmento de kernel mapeado directo
	PilaUsuario = 0x80000000 // tope (exclusivo) de la pila de usuario
)

// PID identifica al proceso dueño de una página
type PID int

// SinDuenio marca marcos libres, reservados o del kernel en la IPT y slots libres en SWAP
const SinDuenio PID = -1

// Virtual es una dirección virtual de usuario
type Virtual uint32

// Fisica es una dirección física
type Fisica uint32

// Pagina devuelve la dirección alineada al comienzo de su página
func (v Virtual) Pagina() Virtual {
	return v & Virtual(MarcoPagina)
}

// Desplazamiento devuelve el offset de la dirección dentro de su página
func (v Virtual) Desplazamiento() uint32 {
	return uint32(v) &^ MarcoPagina
}

func (v Virtual) String() string {
	return fmt.Sprintf("%#08x", uint32(v))
}

// Marco devuelve el índice de marco que contiene la dirección física
func (f Fisica) Marco() int {
	return int(f / TamanioPagina)
}

func (f Fisica) String() string {
	return fmt.Sprintf("%#08x", uint32(f))
}

// DireccionMarco es la biyección índice de marco -> dirección física
func DireccionMarco(marco int) Fisica {
	return Fisica(marco * TamanioPagina)
}

// FisicaAKernel traduce una dirección física a su alias en kseg0 (PADDR_TO_KVADDR)
func FisicaAKernel(f Fisica) uint32 {
	return uint32(f) + KSeg0
}

// KernelAFisica es la inversa de FisicaAKernel
func KernelAFisica(kv uint32) Fisica {
	return Fisica(kv - KSeg0)
}

// PaginasPara calcula cuántas páginas hacen falta para cubrir tamanio bytes
func PaginasPara(tamanio int) int {
	return (tamanio + TamanioPagina - 1) / TamanioPagina
}
