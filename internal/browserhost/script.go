package browserhost

// extractionScript is injected into the page with page.Evaluate. It must be
// a self-contained pure function of its argument (maxElementsLength): no
// captured closures, and its return value must be plain serialisable data,
// because it runs in a page context distinct from the Go process.
//
// The only DOM mutation it performs is stamping data-ba-idx on the
// elements it indexes; nothing else about the page is changed.
const extractionScript = `(maxElementsLength) => {
	function isVisible(el) {
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) return false;
		let style;
		try {
			style = window.getComputedStyle(el);
		} catch (e) {
			return true;
		}
		if (!style) return true;
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
		return true;
	}

	const interactiveTags = new Set(['a','button','input','textarea','select','option','details','summary']);
	const interactiveRoles = new Set(['button','link','tab','menuitem','menuitemcheckbox','menuitemradio','option',
		'radio','switch','textbox','combobox','searchbox','slider','spinbutton','checkbox','listbox','treeitem','gridcell']);

	function isInteractive(el) {
		const tag = el.tagName.toLowerCase();
		if (interactiveTags.has(tag)) return true;
		const role = el.getAttribute('role');
		if (role && interactiveRoles.has(role)) return true;
		const tabindex = el.getAttribute('tabindex');
		if (tabindex !== null && tabindex !== '-1') return true;
		if (el.getAttribute('contenteditable') === 'true') return true;
		if (el.hasAttribute('onclick') || el.hasAttribute('ng-click') || el.hasAttribute('@click')) return true;
		try {
			const style = window.getComputedStyle(el);
			if (style && style.cursor === 'pointer') return true;
		} catch (e) {
			// ignore
		}
		return false;
	}

	function elementText(el) {
		const tag = el.tagName.toLowerCase();
		let text = '';
		if (tag === 'input' || tag === 'textarea') {
			text = el.value || el.getAttribute('placeholder') || el.getAttribute('aria-label') || el.getAttribute('name') || '';
		} else if (tag === 'select') {
			const opt = el.options && el.options[el.selectedIndex];
			text = opt ? opt.text : '';
		} else if (tag === 'img') {
			text = el.getAttribute('alt') || '';
		}
		if (!text) {
			let direct = '';
			for (const node of el.childNodes) {
				if (node.nodeType === 3) direct += node.textContent;
			}
			direct = direct.trim();
			if (direct) {
				text = direct.slice(0, 200);
			} else {
				text = (el.innerText || '').trim().slice(0, 200);
			}
		}
		return text.slice(0, 150);
	}

	function elementAttrs(el) {
		const tag = el.tagName.toLowerCase();
		const parts = [];
		const ariaLabel = el.getAttribute('aria-label');
		if (ariaLabel) parts.push('aria-label=\'' + ariaLabel + '\'');
		const type = el.getAttribute('type');
		if (type) parts.push('type=\'' + type + '\'');
		if (tag === 'a') {
			const href = el.getAttribute('href');
			if (href) parts.push('href=\'' + href.slice(0, 80) + '\'');
		}
		const role = el.getAttribute('role');
		if (role) parts.push('role=\'' + role + '\'');
		const name = el.getAttribute('name');
		if (name) parts.push('name=\'' + name + '\'');
		const placeholder = el.getAttribute('placeholder');
		if (placeholder) parts.push('placeholder=\'' + placeholder + '\'');
		return parts.length ? ' ' + parts.join(' ') : '';
	}

	const all = document.querySelectorAll('*');
	let links = 0, interactiveCount = 0, iframes = 0, images = 0;
	for (const el of all) {
		const tag = el.tagName.toLowerCase();
		if (tag === 'a') links++;
		if (tag === 'iframe') iframes++;
		if (tag === 'img') images++;
		if (isInteractive(el)) interactiveCount++;
	}

	const scrollY = window.scrollY || 0;
	const viewportHeight = window.innerHeight || 1;
	const scrollHeight = document.documentElement ? document.documentElement.scrollHeight : scrollY + viewportHeight;
	const pagesAbove = Math.round((scrollY / viewportHeight) * 10) / 10;
	const pagesBelow = Math.round((Math.max(0, scrollHeight - scrollY - viewportHeight) / viewportHeight) * 10) / 10;

	const lines = [];
	let index = 0;
	for (const el of all) {
		if (!isInteractive(el)) continue;
		if (!isVisible(el)) continue;
		index++;
		el.setAttribute('data-ba-idx', String(index));
		const tag = el.tagName.toLowerCase();
		const text = elementText(el);
		const attrs = elementAttrs(el);
		lines.push('[' + index + ']<' + tag + attrs + '>' + text + '</' + tag + '>');
	}

	let elementsText = lines.join('\n');
	if (elementsText.length > maxElementsLength) {
		elementsText = elementsText.slice(0, maxElementsLength) + '\n... [truncated]';
	}

	return {
		pageStats: { links: links, interactive: interactiveCount, iframes: iframes, images: images, totalElements: all.length },
		scroll: { pagesAbove: pagesAbove, pagesBelow: pagesBelow, pixelsAbove: Math.round(scrollY), pixelsBelow: Math.round(Math.max(0, scrollHeight - scrollY - viewportHeight)) },
		elementsText: elementsText,
		elementCount: index,
		url: window.location.href,
		title: document.title,
	};
}`
