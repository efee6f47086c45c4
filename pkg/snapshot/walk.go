package snapshot

// WalkScript collects raw element facts from the live page. It is read-only
// apart from the handle WeakMap, which never keeps an element alive.
//
// The argument is the document number offered by the provider. A document
// adopts it on its first walk and keeps it until it is replaced, so handles
// stay unique across navigations even though the in-page counter restarts.
const WalkScript = `(nextDoc) => {
  const MAX_ELEMENTS = 4000;
  const SKIP = new Set(["SCRIPT", "STYLE", "NOSCRIPT", "TEMPLATE", "HEAD", "META", "LINK", "TITLE"]);
  const ATTRS = ["id", "name", "type", "href", "role", "aria-label", "aria-labelledby",
    "aria-disabled", "placeholder", "title", "for", "class", "data-testid", "tabindex",
    "contenteditable", "data-pagetrace-overlay"];
  const handles = window.__pagetraceHandles || (window.__pagetraceHandles = new WeakMap());
  if (typeof window.__pagetraceDoc !== "number") {
    window.__pagetraceDoc = nextDoc;
    window.__pagetraceNextHandle = 0;
  }
  const doc = window.__pagetraceDoc;
  const handleOf = (el) => {
    let h = handles.get(el);
    if (!h) { h = "d" + doc + "h" + (++window.__pagetraceNextHandle); handles.set(el, h); }
    return h;
  };
  const clean = (s) => (s || "").replace(/\s+/g, " ").trim();
  const pathOf = (el) => {
    const parts = [];
    for (let cur = el; cur && cur.nodeType === 1 && cur !== document.documentElement; cur = cur.parentElement) {
      const tag = cur.tagName.toLowerCase();
      let idx = 1;
      for (let sib = cur.previousElementSibling; sib; sib = sib.previousElementSibling) {
        if (sib.tagName === cur.tagName) idx++;
      }
      parts.unshift(tag + ":nth-of-type(" + idx + ")");
    }
    return "html > " + parts.join(" > ");
  };
  const labelText = (el) => {
    if (el.labels && el.labels.length) return clean(Array.from(el.labels).map((l) => l.innerText).join(" "));
    const wrap = el.closest && el.closest("label");
    return wrap ? clean(wrap.innerText) : "";
  };
  const labelledBy = (el) => {
    const ids = (el.getAttribute("aria-labelledby") || "").split(/\s+/).filter(Boolean);
    return clean(ids.map((id) => { const t = document.getElementById(id); return t ? t.innerText : ""; }).join(" "));
  };
  const ownText = (el) => Array.from(el.childNodes).some((c) => c.nodeType === 3 && c.textContent.trim() !== "");
  const out = [];
  const walk = (el) => {
    if (out.length >= MAX_ELEMENTS || SKIP.has(el.tagName)) return;
    if (el.hasAttribute("data-pagetrace-overlay")) return;
    const style = window.getComputedStyle(el);
    const rect = el.getBoundingClientRect();
    const attrs = {};
    for (const a of ATTRS) { if (el.hasAttribute(a)) attrs[a] = el.getAttribute(a); }
    const tabindex = el.getAttribute("tabindex");
    out.push({
      handle: handleOf(el),
      tag: el.tagName.toLowerCase(),
      attributes: attrs,
      text: clean(el.innerText || el.textContent).slice(0, 400),
      ownText: ownText(el),
      value: ("value" in el && typeof el.value === "string") ? el.value : "",
      labelText: labelText(el),
      labelledByText: labelledBy(el),
      path: pathOf(el),
      box: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
      hidden: style.display === "none" || style.visibility === "hidden" || style.opacity === "0",
      disabled: !!el.disabled,
      readOnly: !!el.readOnly,
      contentEditable: el.isContentEditable === true,
      focusable: tabindex !== null && Number(tabindex) >= 0,
    });
    for (const child of el.children) walk(child);
  };
  if (document.body) walk(document.body);
  return {
    url: location.href,
    title: document.title,
    document: doc,
    viewport: { width: window.innerWidth, height: window.innerHeight },
    elements: out,
  };
}`
