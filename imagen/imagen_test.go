package imagen

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func prog(tipo elf.ProgType, flags elf.ProgFlag, vaddr, memsz, filesz, off uint64) *elf.Prog {
	return &elf.Prog{ProgHeader: elf.ProgHeader{
		Type:   tipo,
		Flags:  flags,
		Vaddr:  vaddr,
		Memsz:  memsz,
		Filesz: filesz,
		Off:    off,
	}}
}

func TestSegmentos(t *testing.T) {
	tests := []struct {
		name   string
		progs  []*elf.Prog
		texto  uint64
		datos  uint64
		errEsp error
	}{
		{
			name: "texto y datos",
			progs: []*elf.Prog{
				prog(elf.PT_NOTE, elf.PF_R, 0, 0, 0, 0),
				prog(elf.PT_LOAD, elf.PF_R|elf.PF_X, 0x400000, 0x2300, 0x2300, 0x1000),
				prog(elf.PT_LOAD, elf.PF_R|elf.PF_W, 0x10000000, 0x5000, 0x120, 0x3300),
			},
			texto: 0x400000,
			datos: 0x10000000,
		},
		{
			name: "solo texto",
			progs: []*elf.Prog{
				prog(elf.PT_LOAD, elf.PF_R|elf.PF_X, 0x400000, 0x100, 0x100, 0),
			},
			texto: 0x400000,
		},
		{
			name: "sin texto",
			progs: []*elf.Prog{
				prog(elf.PT_LOAD, elf.PF_R|elf.PF_W, 0x10000000, 0x100, 0x100, 0),
			},
			errEsp: ErrSinTexto,
		},
		{
			name: "dos segmentos de datos",
			progs: []*elf.Prog{
				prog(elf.PT_LOAD, elf.PF_R|elf.PF_X, 0x400000, 0x100, 0x100, 0),
				prog(elf.PT_LOAD, elf.PF_R|elf.PF_W, 0x10000000, 0x100, 0x100, 0x100),
				prog(elf.PT_LOAD, elf.PF_R|elf.PF_W, 0x20000000, 0x100, 0x100, 0x200),
			},
			errEsp: ErrDemasiadosSegmentos,
		},
		{
			name: "pisa la pila",
			progs: []*elf.Prog{
				prog(elf.PT_LOAD, elf.PF_R|elf.PF_X, 0x7FFFF000, 0x2000, 0x100, 0),
			},
			errEsp: ErrSegmentoFueraDeRango,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			texto, datos, err := Segmentos(tt.progs)
			if tt.errEsp != nil {
				if !errors.Is(err, tt.errEsp) {
					t.Fatalf("err = %v, want %v", err, tt.errEsp)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if uint64(texto.Vaddr) != tt.texto {
				t.Errorf("texto en %v, want %#x", texto.Vaddr, tt.texto)
			}
			if uint64(datos.Vaddr) != tt.datos {
				t.Errorf("datos en %v, want %#x", datos.Vaddr, tt.datos)
			}
		})
	}
}

func TestCargarELFRechazaOtrosFormatos(t *testing.T) {
	ruta := filepath.Join(t.TempDir(), "programa")
	if err := os.WriteFile(ruta, []byte("#!/bin/sh\necho hola\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := CargarELF(ruta); !errors.Is(err, ErrNoEsELF) {
		t.Errorf("err = %v, want ErrNoEsELF", err)
	}
	if _, err := CargarELF(filepath.Join(t.TempDir(), "no-existe")); err == nil {
		t.Errorf("se esperaba error con un archivo inexistente")
	}
}
