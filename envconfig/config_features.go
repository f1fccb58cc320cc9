// config_features.go - Trainings-Schalter aus der Umgebung
//
// Dieses Modul enthaelt:
// - LatentCacheType: Speicherformat des Latent-Code-Caches
// - Seed: Startwert fuer alle Zufallsquellen
// - NumWorkers: Parallelitaet beim Laden von Dateien
package envconfig

var (
	// LatentCacheType ist das Speicherformat fuer gecachte Latent-Codes (f32, f16 oder bf16)
	LatentCacheType = String("VAE_LATENT_CACHE_TYPE")

	// Seed setzt den Startwert fuer Initialisierung und Sampling
	// Konfigurierbar via VAE_SEED
	Seed = Uint64("VAE_SEED", 42)

	// NumWorkers begrenzt parallele Datei-Lader
	// Konfigurierbar via VAE_NUM_WORKERS, 0 = GOMAXPROCS
	NumWorkers = Uint("VAE_NUM_WORKERS", 0)
)
