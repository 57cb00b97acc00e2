package main

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sweeney/lamp-relay/internal/ota"
	"github.com/sweeney/lamp-relay/internal/system"
)

// slotEnvVar names the slot an exec'd image was started from. Its presence
// stops that image from exec'ing again.
const slotEnvVar = "LAMPD_SLOT"

type execFunc func(path string, argv, env []string) error

// bootActiveSlot hands the process over to the image in the active update
// slot, if one is installed. It returns only when this binary should run.
func bootActiveSlot(dir string, log *zap.Logger) {
	flash, err := ota.NewSlotFlash(dir)
	if err != nil {
		log.Warn("update slots unavailable", zap.Error(err))
		return
	}
	self, err := os.Executable()
	if err != nil {
		log.Warn("cannot locate running binary", zap.Error(err))
		return
	}
	bootSlot(flash, self, os.Args, os.Environ(), system.Exec, log)
}

func bootSlot(flash *ota.SlotFlash, self string, args, env []string, exec execFunc, log *zap.Logger) {
	for _, kv := range env {
		if strings.HasPrefix(kv, slotEnvVar+"=") {
			return
		}
	}
	image, ok := flash.BootImage()
	if !ok || samePath(image, self) {
		return
	}

	slot := flash.Active()
	argv := []string{image}
	if len(args) > 1 {
		argv = append(argv, args[1:]...)
	}
	env = append(env[:len(env):len(env)], slotEnvVar+"="+slot)

	log.Info("booting update slot", zap.String("slot", slot), zap.String("image", image))
	log.Sync() //nolint:errcheck
	err := exec(image, argv, env)
	log.Error("cannot boot update slot, running installed binary",
		zap.String("slot", slot), zap.Error(err))
}

func samePath(a, b string) bool {
	if ra, err := filepath.EvalSymlinks(a); err == nil {
		a = ra
	}
	if rb, err := filepath.EvalSymlinks(b); err == nil {
		b = rb
	}
	return a == b
}
