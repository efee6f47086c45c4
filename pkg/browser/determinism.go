package browser

import "fmt"

// DeterminismMarker is the window property that guards the determinism hook.
const DeterminismMarker = "__pagetraceDeterminism"

// Fixed clock origin and RNG seed installed by the determinism hook.
const (
	DeterministicEpochMs = 1704067200000 // 2024-01-01T00:00:00Z
	DeterministicSeed    = 0x5eed
)

// DeterminismScript returns the init script that pins the clock, seeds
// Math.random and disables animations. Running it twice is a no-op.
func DeterminismScript() string {
	return fmt.Sprintf(`(() => {
  if (window.%[1]s) return;
  Object.defineProperty(window, %[1]q, { value: true, enumerable: false });

  const epoch = %[2]d;
  const start = performance.now();
  const RealDate = Date;
  const now = () => epoch + Math.floor(performance.now() - start);
  class FixedDate extends RealDate {
    constructor(...args) {
      if (args.length === 0) { super(now()); } else { super(...args); }
    }
    static now() { return now(); }
  }
  window.Date = FixedDate;

  let seed = %[3]d >>> 0;
  Math.random = () => {
    seed = (seed + 0x6D2B79F5) >>> 0;
    let t = seed;
    t = Math.imul(t ^ (t >>> 15), t | 1);
    t ^= t + Math.imul(t ^ (t >>> 7), t | 61);
    return ((t ^ (t >>> 14)) >>> 0) / 4294967296;
  };

  const css = "*,*::before,*::after{animation:none!important;transition:none!important;caret-color:transparent!important;scroll-behavior:auto!important}";
  const install = () => {
    const style = document.createElement("style");
    style.setAttribute("data-pagetrace-overlay", "determinism");
    style.textContent = css;
    (document.head || document.documentElement).appendChild(style);
  };
  if (document.readyState === "loading") {
    document.addEventListener("DOMContentLoaded", install, { once: true });
  } else {
    install();
  }
})();`, DeterminismMarker, DeterministicEpochMs, DeterministicSeed)
}
