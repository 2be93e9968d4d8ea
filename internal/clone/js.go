package clone

// ScriptJS installs globalThis.__clonePayload, the in-VM rendition of
// Clone. Its result is always JSON-serializable: back-edges are dropped
// from objects and nulled in arrays, functions and symbols become {},
// non-finite numbers become null, bigints become strings, Dates become ISO
// strings, and typed arrays become plain arrays.
const ScriptJS = `
(function() {
	var OMIT = {};

	function bytes(buf, off, len) {
		var view = new Uint8Array(buf, off, len);
		var out = new Array(view.length);
		for (var i = 0; i < view.length; i++) out[i] = view[i];
		return out;
	}

	function walk(v, path) {
		if (v === null) return null;
		var t = typeof v;
		if (t === 'undefined') return undefined;
		if (t === 'string' || t === 'boolean') return v;
		if (t === 'number') return isFinite(v) ? v : null;
		if (t === 'bigint') return String(v);
		if (t === 'function' || t === 'symbol') return {};

		if (path.indexOf(v) !== -1) return OMIT;

		if (v instanceof Date) return isNaN(v.getTime()) ? null : v.toISOString();
		if (typeof ArrayBuffer !== 'undefined') {
			if (v instanceof ArrayBuffer) return bytes(v, 0, v.byteLength);
			if (ArrayBuffer.isView(v)) {
				if (typeof DataView !== 'undefined' && v instanceof DataView) {
					return bytes(v.buffer, v.byteOffset, v.byteLength);
				}
				var arr = new Array(v.length);
				for (var j = 0; j < v.length; j++) arr[j] = walk(v[j], path);
				return arr;
			}
		}

		path.push(v);
		try {
			var out, r;
			if (Array.isArray(v)) {
				out = new Array(v.length);
				for (var i = 0; i < v.length; i++) {
					try { r = walk(v[i], path); } catch (e) { r = {}; }
					out[i] = (r === OMIT || r === undefined) ? null : r;
				}
				return out;
			}
			if (typeof Map !== 'undefined' && v instanceof Map) {
				out = {};
				v.forEach(function(val, key) {
					var mr = walk(val, path);
					if (mr !== OMIT && mr !== undefined) out[String(key)] = mr;
				});
				return out;
			}
			if (typeof Set !== 'undefined' && v instanceof Set) {
				out = [];
				v.forEach(function(val) {
					var sr = walk(val, path);
					out.push((sr === OMIT || sr === undefined) ? null : sr);
				});
				return out;
			}
			out = {};
			if (v instanceof Error) {
				out.name = v.name;
				out.message = v.message;
			}
			var keys = Object.keys(v);
			for (var k = 0; k < keys.length; k++) {
				try { r = walk(v[keys[k]], path); } catch (e) { r = {}; }
				if (r !== OMIT && r !== undefined) out[keys[k]] = r;
			}
			return out;
		} finally {
			path.pop();
		}
	}

	globalThis.__clonePayload = function(v) {
		var r = walk(v, []);
		return (r === undefined || r === OMIT) ? null : r;
	};
})();
`
